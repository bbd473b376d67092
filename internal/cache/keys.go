package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	DetailPrefix    = "br:detail:"
	ListPrefix      = "br:list:"
	AnalyticsPrefix = "br:analytics:"
	BudgetPrefix    = "budget:"
)

func DetailKey(id uint) string {
	return fmt.Sprintf("%s%d", DetailPrefix, id)
}

// ListKey scopes a list query to the viewer. filter must marshal
// deterministically (a struct, not a map).
func ListKey(op string, userID uint, role string, filter any) string {
	raw, _ := json.Marshal(filter)
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s%s:%d:%s:%s", ListPrefix, op, userID, role, hex.EncodeToString(sum[:12]))
}

func AnalyticsKey(parts ...any) string {
	return AnalyticsPrefix + fmt.Sprint(parts...)
}

func BudgetKey(department string, fiscalYear int, fiscalPeriod string) string {
	return fmt.Sprintf("%s%s:%d:%s", BudgetPrefix, department, fiscalYear, fiscalPeriod)
}
