package models

import (
	"fmt"
	"strings"
)

type Department string

const (
	DepartmentFinance    Department = "finance"
	DepartmentHR         Department = "hr"
	DepartmentInventory  Department = "inventory"
	DepartmentOperations Department = "operations"
	DepartmentSales      Department = "sales"
	DepartmentIT         Department = "it"
)

// Departments is ordered; Index relies on the position staying stable.
var Departments = []Department{
	DepartmentFinance,
	DepartmentHR,
	DepartmentInventory,
	DepartmentOperations,
	DepartmentSales,
	DepartmentIT,
}

func ParseDepartment(s string) (Department, error) {
	d := Department(strings.ToLower(strings.TrimSpace(s)))
	if d.Index() == 0 {
		return "", fmt.Errorf("unknown department %q", s)
	}
	return d, nil
}

// Index is the 1-based position in Departments, 0 when unknown.
func (d Department) Index() int {
	for i, v := range Departments {
		if v == d {
			return i + 1
		}
	}
	return 0
}

func (d Department) Valid() bool { return d.Index() > 0 }
