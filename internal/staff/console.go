package staff

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/notify"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
)

// ConsoleAPI: удалённые операции консоли администратора.
type ConsoleAPI interface {
	ListStaff(ctx context.Context, search string) ([]model.StaffMember, error)
	CreateStaff(ctx context.Context, in gateway.StaffInput) (*model.StaffMember, error)
	UpdateStaff(ctx context.Context, id string, in gateway.StaffInput) (*model.StaffMember, error)
	DeleteStaff(ctx context.Context, id string) error
}

const createKey = "create"

// Console: консоль администратора для учётных записей сотрудников.
type Console struct {
	api      ConsoleAPI
	notifier notify.Notifier
	logger   *zap.Logger
	inflight inflight
}

// NewConsole создаёт консоль.
func NewConsole(api ConsoleAPI, notifier notify.Notifier, logger *zap.Logger) *Console {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{api: api, notifier: notifier, logger: logger}
}

// ValidateStaff проверяет данные сотрудника. При partial пустые поля не проверяются.
func ValidateStaff(in gateway.StaffInput, partial bool) error {
	errs := validation.FieldErrors{}
	if !partial || in.FullName != "" {
		errs.Check(validation.IsValidFullName(in.FullName), "fullName", "Enter the staff member's full name")
	}
	if !partial || in.StaffID != "" {
		errs.Check(validation.IsValidStaffID(in.StaffID), "staffId", "Staff ID must be 3-20 upper-case letters, digits or hyphens")
	}
	if in.Email != "" {
		errs.Check(validation.IsValidEmail(in.Email), "email", "Enter a valid email address")
	}
	if !partial || in.Password != "" {
		errs.Check(validation.IsStrongPassword(in.Password), "password",
			"Password must be at least 12 characters with upper, lower, digit and symbol")
	}
	return errs.Err()
}

// List возвращает сотрудников, отфильтрованных по строке поиска.
func (c *Console) List(ctx context.Context, search string) ([]model.StaffMember, error) {
	items, err := c.api.ListStaff(ctx, validation.SanitizeText(search))
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	return items, nil
}

// Create создаёт сотрудника.
func (c *Console) Create(ctx context.Context, in gateway.StaffInput) (*model.StaffMember, error) {
	in = sanitize(in)
	if err := ValidateStaff(in, false); err != nil {
		return nil, err
	}

	release, err := c.inflight.acquire(createKey)
	if err != nil {
		return nil, err
	}
	defer release()

	m, err := c.api.CreateStaff(ctx, in)
	if err != nil {
		c.fail(err, "Failed to create staff member.", in.StaffID)
		return nil, err
	}
	c.notifier.Notify(notify.SeveritySuccess, fmt.Sprintf("Staff member %s created.", m.StaffID))
	c.logger.Info("staff member created", zap.String("staff_id", m.StaffID))
	return m, nil
}

// Update изменяет непустые поля сотрудника.
func (c *Console) Update(ctx context.Context, id string, in gateway.StaffInput) (*model.StaffMember, error) {
	in = sanitize(in)
	if err := ValidateStaff(in, true); err != nil {
		return nil, err
	}

	release, err := c.inflight.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	m, err := c.api.UpdateStaff(ctx, id, in)
	if err != nil {
		c.fail(err, "Failed to update staff member.", id)
		return nil, err
	}
	c.notifier.Notify(notify.SeveritySuccess, fmt.Sprintf("Staff member %s updated.", m.StaffID))
	return m, nil
}

// Delete удаляет сотрудника.
func (c *Console) Delete(ctx context.Context, id string) error {
	release, err := c.inflight.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	if err := c.api.DeleteStaff(ctx, id); err != nil {
		c.fail(err, "Failed to delete staff member.", id)
		return err
	}
	c.notifier.Notify(notify.SeveritySuccess, "Staff member deleted.")
	c.logger.Info("staff member deleted", zap.String("id", id))
	return nil
}

func (c *Console) fail(err error, fallback, id string) {
	c.notifier.Notify(notify.SeverityError, gateway.UserMessage(err, fallback))
	c.logger.Warn("admin action failed", zap.String("id", id), zap.Error(err))
}

func sanitize(in gateway.StaffInput) gateway.StaffInput {
	return gateway.StaffInput{
		FullName: validation.SanitizeText(in.FullName),
		StaffID:  validation.SanitizeText(in.StaffID),
		Email:    validation.SanitizeText(in.Email),
		Password: in.Password,
	}
}
