package health

import (
	"context"
	"errors"
	"fmt"
)

// KeyValidator reports whether a master key is usable.
type KeyValidator interface {
	ValidateKey(ctx context.Context, keyID string) (bool, error)
}

// KeyServiceCheck fails when the key service is unreachable or keyID is not
// usable.
func KeyServiceCheck(v KeyValidator, keyID string) CheckFunc {
	return func(ctx context.Context) error {
		ok, err := v.ValidateKey(ctx, keyID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("audit master key is not usable")
		}
		return nil
	}
}

// AuditBufferCheck fails once the audit buffer is at least 90% of limit,
// which only happens while sink writes keep failing.
func AuditBufferCheck(pending func() int, limit int) CheckFunc {
	return func(context.Context) error {
		n := pending()
		if limit > 0 && n*10 >= limit*9 {
			return fmt.Errorf("audit buffer holds %d of %d events", n, limit)
		}
		return nil
	}
}

// RulesCheck fails when no static rules are loaded.
func RulesCheck(count func() int) CheckFunc {
	return func(context.Context) error {
		if count() == 0 {
			return errors.New("no static rules loaded")
		}
		return nil
	}
}
