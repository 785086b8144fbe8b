package payment

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestIntentTotal(t *testing.T) {
	in := Intent{Items: []Item{
		{Price: decimal.RequireFromString("150000"), Quantity: 3},
		{Price: decimal.RequireFromString("25000.50")},
	}}
	assert.True(t, decimal.RequireFromString("475000.50").Equal(in.Total()))
}

func TestMetadataFromCustomFields(t *testing.T) {
	assert.Nil(t, metadataFromCustomFields("", "", ""))
	md := metadataFromCustomFields("g1", "", "flat_fee")
	if assert.NotNil(t, md) {
		assert.Equal(t, "g1", md.GroupCorrelationID)
		assert.Empty(t, md.ReservationIDs)
		assert.Equal(t, "flat_fee", string(md.Mode))
	}
	assert.Empty(t, metadataFromCustomFields("g1", "", "bogus").Mode)
}

func TestMidtransRejectsUnchargeableAmounts(t *testing.T) {
	p := NewMidtransProcessor("server-key", false)
	for _, price := range []string{"0.4", "0", "1200.5"} {
		_, err := p.CreatePaymentIntent(context.Background(), Intent{
			Items:    []Item{{ID: "g1", Name: "Lesson", Price: decimal.RequireFromString(price), Quantity: 1}},
			Metadata: Metadata{GroupCorrelationID: "g1"},
		})
		assert.ErrorIs(t, err, ErrAmount, price)
	}
}
