package coordinator

import (
	"context"
	"time"

	"github.com/homegridlabs/marstekmon/pkg/marstek"
	"github.com/homegridlabs/marstekmon/pkg/models"
)

// DeviceClient is the collaborator that performs the actual UDP exchange
// with the device. Implemented by pkg/marstek; faked in tests.
type DeviceClient interface {
	GetDeviceStatus(ctx context.Context, req *marstek.FetchRequest) (*models.DeviceStatus, error)
	IsPollingPaused(address string) bool
}

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}
