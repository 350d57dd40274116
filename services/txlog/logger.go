// Package txlog keeps a local, append-only record of captured payments.
package txlog

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/payment"
)

const defaultPath = "transactions.log"

// LocalTransactionLogger writes one JSON line per transaction.
type LocalTransactionLogger struct {
	zl   *zap.Logger
	file *os.File
}

var _ payment.TransactionLogger = (*LocalTransactionLogger)(nil)

func NewLocalTransactionLogger(conf *core.Config) (*LocalTransactionLogger, error) {
	path := conf.TransactionsLogPath
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating transactions log directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "opening transactions log")
	}

	encConf := zap.NewProductionEncoderConfig()
	encConf.TimeKey = "logged_at"
	encConf.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encConf.LevelKey = zapcore.OmitKey
	encConf.CallerKey = zapcore.OmitKey
	encConf.StacktraceKey = zapcore.OmitKey
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encConf), zapcore.Lock(f), zap.InfoLevel)

	return &LocalTransactionLogger{zl: zap.New(fileCore), file: f}, nil
}

func (l *LocalTransactionLogger) LogTransaction(_ context.Context, in course.SubscribeInput) error {
	l.zl.Info("transaction",
		zap.String("transaction_id", in.TransactionID),
		zap.String("payment_type", in.PaymentType),
		zap.Int64("course_id", in.CourseID),
		zap.String("user_id", in.UserID),
		zap.Time("payment_date", in.PaymentDate),
		zap.Float64("amount", in.Paid.Amount),
		zap.String("currency", in.Paid.Currency),
	)
	return errors.Wrap(l.zl.Sync(), "flushing transactions log")
}

func (l *LocalTransactionLogger) Close() error {
	_ = l.zl.Sync()
	return l.file.Close()
}
