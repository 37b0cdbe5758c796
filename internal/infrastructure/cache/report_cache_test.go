package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientregistry/internal/domain/client"
)

var sampleRows = []client.ReportRow{
	{ID: 1, Kind: client.KindCompany, TaxID: "11222333000181", DisplayName: "Acme Ltda", Email: "acme@example.com", Active: true},
}

func TestReportKey(t *testing.T) {
	active := false
	assert.Equal(t, "clientregistry:reports:0:any:any", reportKey(0, client.ReportFilter{}))
	assert.Equal(t, "clientregistry:reports:7:COMPANY:false", reportKey(7, client.ReportFilter{Kind: client.KindCompany, Active: &active}))
	assert.Equal(t, "clientregistry:reports:2:any:any:silva", reportKey(2, client.ReportFilter{Name: " Silva "}))
}

func TestReportCache_MissLoadsAndStores(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewReportCache(rdb, time.Minute)
	ctx := context.Background()
	key := "clientregistry:reports:3:any:any"
	data, err := json.Marshal(sampleRows)
	require.NoError(t, err)

	mock.ExpectGet(generationKey).SetVal("3")
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, data, time.Minute).SetVal("OK")

	loads := 0
	rows, err := c.Rows(ctx, client.ReportFilter{}, func(context.Context) ([]client.ReportRow, error) {
		loads++
		return sampleRows, nil
	})
	require.NoError(t, err)
	assert.Equal(t, sampleRows, rows)
	assert.Equal(t, 1, loads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportCache_Hit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewReportCache(rdb, time.Minute)
	data, err := json.Marshal(sampleRows)
	require.NoError(t, err)

	mock.ExpectGet(generationKey).RedisNil()
	mock.ExpectGet("clientregistry:reports:0:any:any").SetVal(string(data))

	rows, err := c.Rows(context.Background(), client.ReportFilter{}, func(context.Context) ([]client.ReportRow, error) {
		t.Fatal("loader must not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, sampleRows, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportCache_RedisDownFallsBackToLoader(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewReportCache(rdb, 0)

	mock.ExpectGet(generationKey).SetErr(errors.New("connection refused"))

	rows, err := c.Rows(context.Background(), client.ReportFilter{}, func(context.Context) ([]client.ReportRow, error) {
		return sampleRows, nil
	})
	require.NoError(t, err)
	assert.Equal(t, sampleRows, rows)
}

func TestReportCache_LoaderErrorIsReturned(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewReportCache(rdb, time.Minute)
	boom := errors.New("db down")

	mock.ExpectGet(generationKey).SetVal("1")
	mock.ExpectGet("clientregistry:reports:1:any:any").RedisNil()

	_, err := c.Rows(context.Background(), client.ReportFilter{}, func(context.Context) ([]client.ReportRow, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestReportCache_Invalidate(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewReportCache(rdb, time.Minute)

	mock.ExpectIncr(generationKey).SetVal(4)
	require.NoError(t, c.InvalidateHook(context.Background(), &client.Client{}))

	mock.ExpectIncr(generationKey).SetErr(errors.New("readonly"))
	assert.Error(t, c.Invalidate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
