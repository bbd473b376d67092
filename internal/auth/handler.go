package auth

import (
	"errors"
	"strings"

	"budget-backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	db     *gorm.DB
	secret string
	log    *zap.Logger
	cost   int
}

func NewHandler(db *gorm.DB, secret string, log *zap.Logger) *Handler {
	return &Handler{db: db, secret: secret, log: log, cost: bcrypt.DefaultCost}
}

var validate = validator.New()

type RegisterSuperAdminRequest struct {
	Name       string            `json:"name" validate:"required,max=100"`
	Email      string            `json:"email" validate:"required,email"`
	Password   string            `json:"password" validate:"required,min=8"`
	Department models.Department `json:"department"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateUserRequest struct {
	Name       string            `json:"name" validate:"required,max=100"`
	Email      string            `json:"email" validate:"required,email"`
	Password   string            `json:"password" validate:"required,min=8"`
	Role       models.UserRole   `json:"role" validate:"required"`
	Department models.Department `json:"department" validate:"required"`
}

type UserResponse struct {
	ID         uint              `json:"id"`
	Name       string            `json:"name"`
	Email      string            `json:"email"`
	Role       models.UserRole   `json:"role"`
	Department models.Department `json:"department"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Department: u.Department}
}

// RegisterSuperAdmin bootstraps the first super admin. It refuses once one
// exists.
func (h *Handler) RegisterSuperAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterSuperAdminRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		if err := validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "name, email and password (min 8) are required")
		}
		if body.Department == "" {
			body.Department = models.DepartmentFinance
		}
		if !body.Department.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "unknown department")
		}

		var count int64
		if err := h.db.Model(&models.User{}).Where("role = ?", models.RoleSuperAdmin).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "a super admin already exists")
		}

		user, err := h.createUser(body.Name, body.Email, body.Password, models.RoleSuperAdmin, body.Department)
		if err != nil {
			return err
		}
		h.log.Info("super admin registered", zap.Uint("user_id", user.ID))
		return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
	}
}

func (h *Handler) Login() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var user models.User
		if err := h.db.Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
		}

		token, err := GenerateToken(h.secret, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not issue token")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  toUserResponse(&user),
		})
	}
}

func (h *Handler) Me() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "not authenticated")
		}

		var user models.User
		if err := h.db.First(&user, claims.UserID).Error; err == nil {
			return c.JSON(toUserResponse(&user))
		}

		// Fall back to the token when the row is gone.
		return c.JSON(UserResponse{
			ID:         claims.UserID,
			Name:       claims.Name,
			Email:      claims.Email,
			Role:       claims.Role,
			Department: claims.Department,
		})
	}
}

// POST /api/admin/users
func (h *Handler) CreateUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		body.Department = models.Department(strings.ToLower(string(body.Department)))
		if err := validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "name, email, password (min 8), role and department are required")
		}
		if !body.Role.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "unknown role")
		}
		if !body.Department.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "unknown department")
		}

		var count int64
		if err := h.db.Model(&models.User{}).Where("email = ?", body.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "email already registered")
		}

		user, err := h.createUser(body.Name, body.Email, body.Password, body.Role, body.Department)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
	}
}

// GET /api/admin/users?department=finance
func (h *Handler) ListUsers() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := h.db.Model(&models.User{})
		if dept := c.Query("department"); dept != "" {
			q = q.Where("department = ?", strings.ToLower(dept))
		}
		if role := c.Query("role"); role != "" {
			q = q.Where("role = ?", role)
		}

		var users []models.User
		if err := q.Order("id ASC").Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list users")
		}
		resp := make([]UserResponse, 0, len(users))
		for i := range users {
			resp = append(resp, toUserResponse(&users[i]))
		}
		return c.JSON(resp)
	}
}

func (h *Handler) createUser(name, email, password string, role models.UserRole, dept models.Department) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "could not hash password")
	}
	user := models.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Department:   dept,
	}
	if err := h.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fiber.NewError(fiber.StatusConflict, "email already registered")
		}
		return nil, fiber.NewError(fiber.StatusInternalServerError, "could not create user")
	}
	return &user, nil
}
