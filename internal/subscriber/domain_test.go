package subscriber

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainFilters(t *testing.T) {
	assert.Equal(t, []string{"sent.confirm-order", "sent.cancel-order"}, OrderFilter().Messages())
	assert.Equal(t, []string{"sent.bulk-reserve-items-from-inventory"}, InventoryFilter().Messages())
	assert.Equal(t, []string{
		"order-placed",
		"bulk-reserve-items-from-inventory-succeeded",
		"bulk-reserve-items-from-inventory-failed",
	}, ProcessOrderFilter().Messages())

	assert.Equal(t, `^sent\.confirm-order$|^sent\.cancel-order$`, OrderFilter().RegularExpression())
}
