package providers

import (
	"fmt"
	"usd/internal/structures"

	"github.com/gookit/validate"
)

type CnfValidator struct {
	conf *structures.Config
}

func NewCnfValidator(conf *structures.Config) *CnfValidator {
	return &CnfValidator{conf: conf}
}

func (cv *CnfValidator) Validate() error {
	v := validate.Struct(cv.conf)
	if !v.Validate() {
		return fmt.Errorf("invalid configuration: %s", v.Errors.One())
	}
	if cv.conf.Scheduler.RetryMaxInterval > 0 && cv.conf.Scheduler.RetryInitialInterval > cv.conf.Scheduler.RetryMaxInterval {
		return fmt.Errorf("invalid configuration: scheduler.retryInitialInterval exceeds scheduler.retryMaxInterval")
	}
	if cv.conf.Collector.MaxWindow < 0 {
		return fmt.Errorf("invalid configuration: collector.maxWindow must not be negative")
	}
	return nil
}
