package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airvoyage/reservation-backend/internal/models"
)

func TestReleaseSeatsRetriesLostRace(t *testing.T) {
	deps := newServiceDeps(t)

	// First attempt loses the write race and its transaction aborts with
	// SQLSTATE 40001; the retry reloads the winner's committed state in a
	// fresh transaction.
	deps.mock.ExpectBegin()
	deps.mock.ExpectQuery("FROM flight_inventory").
		WithArgs("AV100").
		WillReturnRows(economyInventoryRows(8, 4))
	deps.mock.ExpectExec("UPDATE flight_inventory").
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access due to concurrent update"})
	deps.mock.ExpectRollback()

	deps.mock.ExpectBegin()
	deps.mock.ExpectQuery("FROM flight_inventory").
		WithArgs("AV100").
		WillReturnRows(economyInventoryRows(7, 5))
	deps.mock.ExpectExec("UPDATE flight_inventory").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectExec("INSERT INTO event_outbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectCommit()

	err := deps.inventory.ReleaseSeats(context.Background(), "AV100", models.CabinEconomy, 1)
	require.NoError(t, err)
	assert.NoError(t, deps.mock.ExpectationsWereMet())
}

func TestReleaseSeatsPastCapacity(t *testing.T) {
	deps := newServiceDeps(t)

	// A full cabin refuses the release; overcapacity is a domain refusal, not
	// a lost race, so there is exactly one attempt.
	deps.mock.ExpectBegin()
	deps.mock.ExpectQuery("FROM flight_inventory").
		WithArgs("AV100").
		WillReturnRows(economyInventoryRows(10, 4))
	deps.mock.ExpectRollback()

	err := deps.inventory.ReleaseSeats(context.Background(), "AV100", models.CabinEconomy, 1)
	require.Error(t, err)
	assert.True(t, models.HasTag(err, models.TagInventoryOvercap))
	assert.NoError(t, deps.mock.ExpectationsWereMet())
}
