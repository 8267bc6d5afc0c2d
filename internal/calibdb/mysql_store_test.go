package calibdb

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usnistgov/evsel"
)

func mockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewMySQLStore(sqlx.NewDb(db, "mysql"))
	t.Cleanup(func() {
		mock.ExpectClose()
		assert.NoError(t, store.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return store, mock
}

func expectVersion(mock sqlmock.Sqlmock, table string, ts, from, until int64) {
	mock.ExpectQuery("SELECT ValidFrom, ValidUntil FROM "+table+" WHERE").
		WithArgs(ts, ts).
		WillReturnRows(sqlmock.NewRows([]string{"ValidFrom", "ValidUntil"}).AddRow(from, until))
}

func TestMySQLFetchParams(t *testing.T) {
	store, mock := mockStore(t)
	expectVersion(mock, paramsTable, 60, 0, 100)
	mock.ExpectQuery("SELECT Name, Value FROM EventSelectionParams WHERE").
		WithArgs(int64(0), int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"Name", "Value"}).
			AddRow("fV0ABBlower", -3.0).
			AddRow("fV0ABBupper", 2.5).
			AddRow("fZNSumSigma", 1.5).
			AddRow("fV0MOnVsOfA", -59.5).
			AddRow("fV0MOnVsOfB", 5.25))
	mock.ExpectQuery("SELECT Mode, Bit FROM SelectionRecipes WHERE").
		WithArgs(int64(0), int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"Mode", "Bit"}).
			AddRow("muon-pileup", "IsBBV0A").
			AddRow("muon-pileup", "NoBGT0C").
			AddRow("barrel", "9"))

	obj, err := store.Fetch(context.Background(), evsel.EventSelectionParams, 60)
	require.NoError(t, err)
	p := obj.(*evsel.CalibrationParameters)
	assert.Equal(t, evsel.ValidityRange{Start: 0, End: 100}, p.Valid)
	assert.Equal(t, evsel.Window{Lower: -3, Upper: 2.5}, p.V0ABB)
	assert.Equal(t, float32(1.5), p.ZN.SumSigma)
	assert.Equal(t, evsel.LinearCut{A: -59.5, B: 5.25}, p.V0MOnVsOf)
	assert.Equal(t, evsel.Recipe{evsel.IsBBV0A, evsel.NoBGT0C}, p.Recipe(evsel.MuonWithPileupCuts))
	assert.Equal(t, evsel.Recipe{evsel.IsBBT0C}, p.Recipe(evsel.Barrel))
	assert.Equal(t, evsel.DefaultRecipe(evsel.MuonWithoutPileupCuts), p.Recipe(evsel.MuonWithoutPileupCuts))
}

func TestMySQLFetchParamsWithoutRecipes(t *testing.T) {
	store, mock := mockStore(t)
	expectVersion(mock, paramsTable, 5, 0, 100)
	mock.ExpectQuery("SELECT Name, Value FROM EventSelectionParams WHERE").
		WillReturnRows(sqlmock.NewRows([]string{"Name", "Value"}).AddRow("fT0ABBupper", 1.0))
	mock.ExpectQuery("SELECT Mode, Bit FROM SelectionRecipes WHERE").
		WillReturnRows(sqlmock.NewRows([]string{"Mode", "Bit"}))

	obj, err := store.Fetch(context.Background(), evsel.EventSelectionParams, 5)
	require.NoError(t, err)
	p := obj.(*evsel.CalibrationParameters)
	assert.Nil(t, p.Recipes)
	assert.Equal(t, evsel.DefaultRecipe(evsel.Barrel), p.Recipe(evsel.Barrel))
}

func TestMySQLFetchMiss(t *testing.T) {
	store, mock := mockStore(t)
	for _, table := range []string{paramsTable, aliasTable, fillingTable} {
		mock.ExpectQuery("SELECT ValidFrom, ValidUntil FROM " + table + " WHERE").
			WithArgs(int64(500), int64(500)).
			WillReturnRows(sqlmock.NewRows([]string{"ValidFrom", "ValidUntil"}))
	}
	for _, kind := range []evsel.CalibrationKind{evsel.EventSelectionParams, evsel.TriggerAliases, evsel.BunchFillingScheme} {
		_, err := store.Fetch(context.Background(), kind, 500)
		assert.ErrorIs(t, err, evsel.ErrCalibrationUnavailable, "%v", kind)
	}

	_, err := store.Fetch(context.Background(), evsel.CalibrationKind(99), 500)
	assert.ErrorIs(t, err, evsel.ErrCalibrationUnavailable)
}

func TestMySQLFetchQueryError(t *testing.T) {
	store, mock := mockStore(t)
	mock.ExpectQuery("SELECT ValidFrom, ValidUntil FROM TriggerAliases WHERE").
		WillReturnError(errors.New("connection refused"))
	_, err := store.Fetch(context.Background(), evsel.TriggerAliases, 7)
	require.Error(t, err)
	assert.NotErrorIs(t, err, evsel.ErrCalibrationUnavailable)
}

func TestMySQLFetchBadRows(t *testing.T) {
	store, mock := mockStore(t)
	ctx := context.Background()

	expectVersion(mock, paramsTable, 1, 0, 10)
	mock.ExpectQuery("SELECT Name, Value FROM EventSelectionParams WHERE").
		WillReturnRows(sqlmock.NewRows([]string{"Name", "Value"}).AddRow("fV0ABBmiddle", 1.0))
	_, err := store.Fetch(ctx, evsel.EventSelectionParams, 1)
	assert.ErrorContains(t, err, "fV0ABBmiddle")

	expectVersion(mock, paramsTable, 1, 0, 10)
	mock.ExpectQuery("SELECT Name, Value FROM EventSelectionParams WHERE").
		WillReturnRows(sqlmock.NewRows([]string{"Name", "Value"}))
	mock.ExpectQuery("SELECT Mode, Bit FROM SelectionRecipes WHERE").
		WillReturnRows(sqlmock.NewRows([]string{"Mode", "Bit"}).AddRow("barrel", "IsBBV0Z"))
	_, err = store.Fetch(ctx, evsel.EventSelectionParams, 1)
	assert.Error(t, err)

	for _, id := range []int64{int64(evsel.NAliases), 40, -1} {
		expectVersion(mock, aliasTable, 1, 0, 10)
		mock.ExpectQuery("SELECT AliasID, Mask, MaskNext50 FROM TriggerAliases WHERE").
			WillReturnRows(sqlmock.NewRows([]string{"AliasID", "Mask", "MaskNext50"}).
				AddRow(int64(evsel.AliasINT7), int64(1), int64(0)).
				AddRow(id, int64(2), int64(0)))
		_, err = store.Fetch(ctx, evsel.TriggerAliases, 1)
		assert.ErrorContains(t, err, "out of range", "alias ID %d", id)
	}
}

func TestMySQLFetchAliasesAndFilling(t *testing.T) {
	store, mock := mockStore(t)
	ctx := context.Background()

	expectVersion(mock, aliasTable, 20, 10, 30)
	mock.ExpectQuery("SELECT AliasID, Mask, MaskNext50 FROM TriggerAliases WHERE").
		WithArgs(int64(10), int64(30)).
		WillReturnRows(sqlmock.NewRows([]string{"AliasID", "Mask", "MaskNext50"}).
			AddRow(int64(evsel.AliasINT7), int64(1<<4), int64(0)).
			AddRow(int64(evsel.AliasCUP8), int64(0), int64(2)))
	obj, err := store.Fetch(ctx, evsel.TriggerAliases, 20)
	require.NoError(t, err)
	table := obj.(*evsel.TriggerAliasTable)
	assert.Equal(t, []evsel.AliasEntry{
		{Alias: evsel.AliasINT7, Mask: 1 << 4},
		{Alias: evsel.AliasCUP8, MaskNext50: 2},
	}, table.Entries)
	assert.True(t, evsel.DecodeAliases(table, 0, 2).Has(evsel.AliasCUP8))

	expectVersion(mock, fillingTable, 20, 0, 40)
	mock.ExpectQuery("SELECT Slot FROM BunchFilling WHERE").
		WithArgs(int64(0), int64(40)).
		WillReturnRows(sqlmock.NewRows([]string{"Slot"}).AddRow(int64(17)).AddRow(int64(300)))
	obj, err = store.Fetch(ctx, evsel.BunchFillingScheme, 20)
	require.NoError(t, err)
	filling := obj.(*evsel.BunchFilling)
	assert.Equal(t, []int{17, 300}, filling.Colliding)
	assert.True(t, filling.IsColliding(evsel.LHCMaxBunches+300))
	assert.False(t, filling.IsColliding(18))
}
