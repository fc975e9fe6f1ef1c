package validator

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"gte=1"`
}

type orderRequest struct {
	Lines   []lineRequest `json:"lines" validate:"required,min=1,dive"`
	Address string        `json:"address" validate:"required,max=20"`
	Method  string        `json:"payment_method" validate:"oneof=PayPal Card"`
}

func validOrder() orderRequest {
	return orderRequest{
		Lines:   []lineRequest{{ProductID: "0b8d8a4e-3c44-4c52-9b43-4a1f7b7d9f01", Qty: 1}},
		Address: "1 Main St",
		Method:  "PayPal",
	}
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(validOrder()))
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	req := validOrder()
	req.Address = ""
	req.Method = "Cash"

	err := Validate(req)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["address"])
	assert.Equal(t, "must be one of: PayPal Card", fields["payment_method"])
}

func TestValidate_DivesIntoLines(t *testing.T) {
	req := validOrder()
	req.Lines[0].Qty = 0
	req.Lines[0].ProductID = "nope"

	err := Validate(req)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	fields := valErr.Fields()
	assert.Equal(t, "must be greater than or equal to 1", fields["qty"])
	assert.Equal(t, "must be a valid UUID", fields["product_id"])
}

func TestValidate_EmptySlice(t *testing.T) {
	req := validOrder()
	req.Lines = []lineRequest{}

	err := Validate(req)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must contain at least 1 items", valErr.Fields()["lines"])
	assert.Contains(t, err.Error(), "field 'lines'")
}

func TestDecodeAndValidate(t *testing.T) {
	body := `{"lines":[{"product_id":"0b8d8a4e-3c44-4c52-9b43-4a1f7b7d9f01","qty":2}],"address":"x","payment_method":"Card"}`
	r := httptest.NewRequest("POST", "/orders", strings.NewReader(body))

	var req orderRequest
	require.NoError(t, DecodeAndValidate(r, &req))
	assert.Equal(t, 2, req.Lines[0].Qty)
}

func TestDecodeAndValidate_BadJSON(t *testing.T) {
	r := httptest.NewRequest("POST", "/orders", strings.NewReader("{"))

	var req orderRequest
	err := DecodeAndValidate(r, &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
