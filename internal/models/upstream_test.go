package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want FlexString
	}{
		{name: "string", in: `"0"`, want: "0"},
		{name: "number", in: `123456`, want: "123456"},
		{name: "null", in: `null`, want: ""},
		{name: "big number", in: `2000000012345`, want: "2000000012345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexString
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlexStringInt(t *testing.T) {
	n, ok := FlexString("1500").Int()
	assert.True(t, ok)
	assert.Equal(t, int64(1500), n)

	n, ok = FlexString("1500.0").Int()
	assert.True(t, ok)
	assert.Equal(t, int64(1500), n)

	_, ok = FlexString("").Int()
	assert.False(t, ok)

	_, ok = FlexString("abc").Int()
	assert.False(t, ok)
}

func TestOrderStatusIsPaid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "paid", body: `{"orderStatus":2,"actionCode":0}`, want: true},
		{name: "paid but action code set", body: `{"orderStatus":2,"actionCode":-100}`, want: false},
		{name: "registered", body: `{"orderStatus":0,"actionCode":-1}`, want: false},
		{name: "missing fields", body: `{"errorCode":"6"}`, want: false},
		{name: "only action code", body: `{"actionCode":0}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s OrderStatus
			require.NoError(t, json.Unmarshal([]byte(tt.body), &s))
			assert.Equal(t, tt.want, s.IsPaid())
		})
	}
}

func TestStatusLabel(t *testing.T) {
	want := map[int]string{
		0:  "registered",
		1:  "held",
		2:  "paid",
		3:  "cancelled",
		4:  "refunded",
		5:  "pending ACS",
		6:  "rejected",
		7:  "unknown",
		-1: "unknown",
	}
	for code, label := range want {
		assert.Equal(t, label, StatusLabel(code), "code %d", code)
	}
}

func TestNewCertificateQRFallsBackToBarcode(t *testing.T) {
	c := NewCertificate("1", "", "2900000000017", "h", "Анна", "", 500)
	assert.Equal(t, "2900000000017", c.QRURL)

	c = NewCertificate("1", "1000001", "2900000000017", "h", "Анна", "", 500)
	assert.Equal(t, "1000001", c.QRURL)
}
