package operator_test

import (
	"context"

	"github.com/drivelog/tripcore/internal/reconstruct"
	"github.com/drivelog/tripcore/pkg/models"
)

type fakeConnections struct {
	conns map[string]*models.VehicleConnection
	err   error
}

func (f *fakeConnections) GetByID(_ context.Context, connectionID string) (*models.VehicleConnection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.conns[connectionID], nil
}

type fakeDeactivator struct {
	deactivated []string
	err         error
}

func (f *fakeDeactivator) Deactivate(_ context.Context, connectionID string) error {
	if f.err != nil {
		return f.err
	}
	f.deactivated = append(f.deactivated, connectionID)
	return nil
}

type fakeReconstructor struct {
	result *reconstruct.Result
	err    error

	lastUserID string
	lastVIN    string
	lastHours  int
}

func (f *fakeReconstructor) Run(_ context.Context, userID, vin string, sinceHours int) (*reconstruct.Result, error) {
	f.lastUserID = userID
	f.lastVIN = vin
	f.lastHours = sinceHours
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
