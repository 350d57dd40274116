package txlog

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/payment"
)

func TestLocalTransactionLogger(t *testing.T) {
	conf := &core.Config{TransactionsLogPath: filepath.Join(t.TempDir(), "logs", "tx.log")}
	l, err := NewLocalTransactionLogger(conf)
	require.NoError(t, err)

	paidAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"CAPT1", "CAPT2"} {
		require.NoError(t, l.LogTransaction(context.Background(), course.SubscribeInput{
			CourseID:      int64(i + 1),
			UserID:        "user-1",
			PaymentDate:   paidAt,
			PaymentType:   payment.TypePaypal,
			Paid:          core.NewMoney(19.9, "EUR"),
			TransactionID: id,
		}))
	}
	require.NoError(t, l.Close())

	f, err := os.Open(conf.TransactionsLogPath)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 2)

	assert.Equal(t, "CAPT1", lines[0]["transaction_id"])
	assert.Equal(t, "Paypal", lines[0]["payment_type"])
	assert.EqualValues(t, 1, lines[0]["course_id"])
	assert.EqualValues(t, 19.9, lines[0]["amount"])
	assert.Equal(t, "EUR", lines[0]["currency"])
	assert.Equal(t, "CAPT2", lines[1]["transaction_id"])
	assert.Contains(t, lines[1], "logged_at")
}
