package formatter

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"ankaa/models"
)

// Built-in notification types.
const (
	TypeTaskCreated      = "task.created"
	TypeTaskOverdue      = "task.overdue"
	TypeOrderReceived    = "order.received"
	TypeStockLow         = "stock.low"
	TypeVacationApproved = "vacation.approved"
	TypePayrollAvailable = "payroll.available"
)

const dateLayout = "02/01/2006"

// TaskMetadata is carried by task.* notifications.
type TaskMetadata struct {
	TaskName     string    `mapstructure:"taskName"`
	SerialNumber string    `mapstructure:"serialNumber"`
	Customer     string    `mapstructure:"customer"`
	Sector       string    `mapstructure:"sector"`
	DueDate      time.Time `mapstructure:"dueDate"`
}

// OrderMetadata is carried by order.* notifications.
type OrderMetadata struct {
	OrderNumber string    `mapstructure:"orderNumber"`
	Supplier    string    `mapstructure:"supplier"`
	ItemCount   int       `mapstructure:"itemCount"`
	ReceivedAt  time.Time `mapstructure:"receivedAt"`
}

// StockMetadata is carried by stock.* notifications.
type StockMetadata struct {
	ItemName     string  `mapstructure:"itemName"`
	Quantity     float64 `mapstructure:"quantity"`
	ReorderPoint float64 `mapstructure:"reorderPoint"`
	Unit         string  `mapstructure:"unit"`
}

// VacationMetadata is carried by vacation.* notifications.
type VacationMetadata struct {
	StartsAt time.Time `mapstructure:"startsAt"`
	EndsAt   time.Time `mapstructure:"endsAt"`
	Days     int       `mapstructure:"days"`
}

// PayrollMetadata is carried by payroll.* notifications.
type PayrollMetadata struct {
	Period    string `mapstructure:"period"`
	Reference string `mapstructure:"reference"`
}

func registerBuiltins(f *Formatter) {
	f.Register(TypeTaskCreated, renderTask("📋"))
	f.Register(TypeTaskOverdue, renderTask("⏰"))
	f.Register(TypeOrderReceived, renderOrder)
	f.Register(TypeStockLow, renderStock)
	f.Register(TypeVacationApproved, renderVacation)
	f.Register(TypePayrollAvailable, renderPayroll)
}

// DecodeMetadata decodes the open metadata map into a typed struct.
func DecodeMetadata(md map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(md)
}

func renderTask(emoji string) Renderer {
	return func(in Input) (Content, error) {
		var md TaskMetadata
		if err := DecodeMetadata(in.Metadata, &md); err != nil {
			return Content{}, fmt.Errorf("decode task metadata: %w", err)
		}
		if md.TaskName == "" {
			return Content{}, errors.New("task metadata without taskName")
		}
		title := in.Title
		if title == "" {
			title = "Task: " + md.TaskName
		}
		fields := []models.Field{{Label: "Task", Value: md.TaskName}}
		fields = appendField(fields, "Serial number", md.SerialNumber)
		fields = appendField(fields, "Customer", md.Customer)
		fields = appendField(fields, "Sector", md.Sector)
		if !md.DueDate.IsZero() {
			fields = append(fields, models.Field{Label: "Due date", Value: md.DueDate.Format(dateLayout)})
		}
		return Content{Emoji: emoji, Title: title, Body: in.Body, Fields: fields}, nil
	}
}

func renderOrder(in Input) (Content, error) {
	var md OrderMetadata
	if err := DecodeMetadata(in.Metadata, &md); err != nil {
		return Content{}, fmt.Errorf("decode order metadata: %w", err)
	}
	if md.OrderNumber == "" {
		return Content{}, errors.New("order metadata without orderNumber")
	}
	fields := []models.Field{{Label: "Order", Value: "#" + md.OrderNumber}}
	fields = appendField(fields, "Supplier", md.Supplier)
	if md.ItemCount > 0 {
		fields = append(fields, models.Field{Label: "Items", Value: strconv.Itoa(md.ItemCount)})
	}
	if !md.ReceivedAt.IsZero() {
		fields = append(fields, models.Field{Label: "Received", Value: md.ReceivedAt.Format(dateLayout)})
	}
	return Content{Emoji: "📦", Title: in.Title, Body: in.Body, Fields: fields}, nil
}

func renderStock(in Input) (Content, error) {
	var md StockMetadata
	if err := DecodeMetadata(in.Metadata, &md); err != nil {
		return Content{}, fmt.Errorf("decode stock metadata: %w", err)
	}
	if md.ItemName == "" {
		return Content{}, errors.New("stock metadata without itemName")
	}
	fields := []models.Field{
		{Label: "Item", Value: md.ItemName},
		{Label: "Quantity", Value: quantity(md.Quantity, md.Unit)},
	}
	if md.ReorderPoint > 0 {
		fields = append(fields, models.Field{Label: "Reorder point", Value: quantity(md.ReorderPoint, md.Unit)})
	}
	return Content{Emoji: "📉", Title: in.Title, Body: in.Body, Fields: fields}, nil
}

func renderVacation(in Input) (Content, error) {
	var md VacationMetadata
	if err := DecodeMetadata(in.Metadata, &md); err != nil {
		return Content{}, fmt.Errorf("decode vacation metadata: %w", err)
	}
	if md.StartsAt.IsZero() {
		return Content{}, errors.New("vacation metadata without startsAt")
	}
	fields := []models.Field{{Label: "Starts", Value: md.StartsAt.Format(dateLayout)}}
	if !md.EndsAt.IsZero() {
		fields = append(fields, models.Field{Label: "Ends", Value: md.EndsAt.Format(dateLayout)})
	}
	if md.Days > 0 {
		fields = append(fields, models.Field{Label: "Days", Value: strconv.Itoa(md.Days)})
	}
	return Content{Emoji: "🌴", Title: in.Title, Body: in.Body, Fields: fields}, nil
}

func renderPayroll(in Input) (Content, error) {
	var md PayrollMetadata
	if err := DecodeMetadata(in.Metadata, &md); err != nil {
		return Content{}, fmt.Errorf("decode payroll metadata: %w", err)
	}
	if md.Period == "" {
		return Content{}, errors.New("payroll metadata without period")
	}
	fields := []models.Field{{Label: "Period", Value: md.Period}}
	fields = appendField(fields, "Reference", md.Reference)
	return Content{Emoji: "💰", Title: in.Title, Body: in.Body, Fields: fields}, nil
}

func appendField(fields []models.Field, label, value string) []models.Field {
	if value == "" {
		return fields
	}
	return append(fields, models.Field{Label: label, Value: value})
}

func quantity(q float64, unit string) string {
	s := strconv.FormatFloat(q, 'f', -1, 64)
	if unit != "" {
		s += " " + unit
	}
	return s
}
