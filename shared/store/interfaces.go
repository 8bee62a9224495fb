package store

import (
	"github.com/pavitra93/gym-tenant-system/shared/analytics"
	"github.com/pavitra93/gym-tenant-system/shared/checkins"
	"github.com/pavitra93/gym-tenant-system/shared/limits"
	"github.com/pavitra93/gym-tenant-system/shared/notify"
	"github.com/pavitra93/gym-tenant-system/shared/plans"
	"github.com/pavitra93/gym-tenant-system/shared/students"
	"github.com/pavitra93/gym-tenant-system/shared/tenants"
)

var (
	_ limits.Source       = (*Store)(nil)
	_ plans.Store         = (*Store)(nil)
	_ students.Store      = (*Store)(nil)
	_ students.Tx         = (*gymTx)(nil)
	_ checkins.Store      = (*Store)(nil)
	_ analytics.Store     = (*Store)(nil)
	_ tenants.Store       = (*Store)(nil)
	_ notify.FailureStore = (*Store)(nil)
)
