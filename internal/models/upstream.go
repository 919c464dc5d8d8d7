package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexString accepts a JSON string, number or null. Both upstream APIs are
// inconsistent about quoting codes and identifiers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Int parses the value as an integer, reporting false when it is empty or
// not numeric.
func (f FlexString) Int() (int64, bool) {
	if f == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(string(f), 10, 64); err == nil {
		return n, true
	}
	if v, err := strconv.ParseFloat(string(f), 64); err == nil {
		return int64(v), true
	}
	return 0, false
}

// CallResult is the uniform shape of a CRM call: it is returned as-is by the
// diagnostic endpoints and embedded in error details.
type CallResult struct {
	OK     bool            `json:"ok"`
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  interface{}     `json:"error,omitempty"`
}

// Gateway (acquiring REST API) payloads.

type RegisterOrder struct {
	OrderNumber string
	Amount      int64
	ReturnURL   string
	Description string
	JSONParams  string
}

type RegisterResult struct {
	OrderID      string     `json:"orderId"`
	FormURL      string     `json:"formUrl"`
	ErrorCode    FlexString `json:"errorCode"`
	ErrorMessage string     `json:"errorMessage"`
}

type MerchantOrderParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type OrderStatus struct {
	ErrorCode             FlexString           `json:"errorCode"`
	ErrorMessage          string               `json:"errorMessage"`
	OrderNumber           string               `json:"orderNumber"`
	OrderStatus           *int                 `json:"orderStatus"`
	ActionCode            *int                 `json:"actionCode"`
	ActionCodeDescription string               `json:"actionCodeDescription"`
	Amount                int64                `json:"amount"`
	OrderDescription      string               `json:"orderDescription"`
	MerchantOrderParams   []MerchantOrderParam `json:"merchantOrderParams"`
}

const (
	OrderStatusRegistered = 0
	OrderStatusHeld       = 1
	OrderStatusPaid       = 2
	OrderStatusCancelled  = 3
	OrderStatusRefunded   = 4
	OrderStatusACS        = 5
	OrderStatusRejected   = 6
)

var orderStatusLabels = map[int]string{
	OrderStatusRegistered: "registered",
	OrderStatusHeld:       "held",
	OrderStatusPaid:       "paid",
	OrderStatusCancelled:  "cancelled",
	OrderStatusRefunded:   "refunded",
	OrderStatusACS:        "pending ACS",
	OrderStatusRejected:   "rejected",
}

// StatusCode returns orderStatus, or -1 when the gateway omitted it.
func (s *OrderStatus) StatusCode() int {
	if s.OrderStatus == nil {
		return -1
	}
	return *s.OrderStatus
}

// ActionCodeValue returns actionCode, or -1 when the gateway omitted it.
func (s *OrderStatus) ActionCodeValue() int {
	if s.ActionCode == nil {
		return -1
	}
	return *s.ActionCode
}

// IsPaid reports a fully captured order.
func (s *OrderStatus) IsPaid() bool {
	return s.StatusCode() == OrderStatusPaid && s.ActionCodeValue() == 0
}

// StatusLabel maps an orderStatus code to its label.
func StatusLabel(code int) string {
	if label, ok := orderStatusLabels[code]; ok {
		return label
	}
	return "unknown"
}

// CRM (loyalty platform) payloads.

type CRMClient struct {
	LastName    string   `json:"lastName"`
	FirstName   string   `json:"firstName"`
	Patronymic  string   `json:"patronymic"`
	Birthday    string   `json:"birthday"`
	Sex         int      `json:"sex"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	TemplateID  int      `json:"templateId"`
	CardNumber  string   `json:"cardNumber"`
	CardBarcode string   `json:"cardBarcode"`
	Comment     string   `json:"comment"`
	Parent      int      `json:"parent"`
	Tags        []string `json:"tags"`
}

type CreateClientsRequest struct {
	Clients []CRMClient `json:"clients"`
}

type CreatedClient struct {
	ClientID    FlexString `json:"clientId"`
	CardNumber  FlexString `json:"cardNumber"`
	CardBarcode FlexString `json:"cardBarcode"`
	Hash        FlexString `json:"hash"`
}

type CreateClientsResponse struct {
	Response []CreatedClient   `json:"response"`
	Errors   []json.RawMessage `json:"errors"`
}

type CartItem struct {
	Name              string  `json:"name"`
	NID               string  `json:"nid"`
	GroupID           string  `json:"groupId"`
	GroupName         string  `json:"groupName"`
	Price             float64 `json:"price"`
	PriceWithDiscount float64 `json:"priceWithDiscount"`
	Amount            int     `json:"amount"`
}

// DepositOrder is a zero-sum order whose only effect is DepositAdd landing on
// the client's balance.
type DepositOrder struct {
	GUID            string     `json:"guid"`
	Number          string     `json:"number"`
	Date            string     `json:"date"`
	Sum             float64    `json:"sum"`
	SumDiscount     float64    `json:"sumDiscount"`
	BonusAdd        float64    `json:"bonusAdd"`
	BonusWriteOff   float64    `json:"bonusWriteOff"`
	DepositAdd      float64    `json:"depositAdd"`
	DepositWriteOff float64    `json:"depositWriteOff"`
	Cart            []CartItem `json:"cart"`
}
