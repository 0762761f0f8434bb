package slogx_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/stockpanel/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestTransportTagsRequests(t *testing.T) {
	ids := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids <- r.Header.Get(slogx.RequestIDHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "test", Level: "debug", Format: "json", Output: &buf})

	client := &http.Client{Transport: &slogx.Transport{Logger: logger}}
	resp, err := client.Get(srv.URL + "/products")
	require.NoError(t, err)
	resp.Body.Close()

	seen := <-ids
	require.NotEmpty(t, seen)
	require.Contains(t, buf.String(), `"msg":"http_request"`)
	require.Contains(t, buf.String(), `"req_id":"`+seen+`"`)
	require.Contains(t, buf.String(), `"path":"/products"`)
}

func TestTransportKeepsCallerRequestID(t *testing.T) {
	ids := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids <- r.Header.Get(slogx.RequestIDHeader)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set(slogx.RequestIDHeader, "caller-id")

	client := &http.Client{Transport: &slogx.Transport{Logger: slogx.Discard()}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "caller-id", <-ids)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", slogx.ParseLevel("debug").String())
	require.Equal(t, "WARN", slogx.ParseLevel("warning").String())
	require.Equal(t, "INFO", slogx.ParseLevel("whatever").String())
}
