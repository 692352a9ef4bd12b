package testfeed

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServesQueuedValuesInOrder(t *testing.T) {
	s := New(0.5)
	s.Enqueue(1.5)
	s.Enqueue(2.5)

	srv := httptest.NewServer(s)
	defer srv.Close()

	for _, want := range []float64{1.5, 2.5, 0.5, 0.5} {
		resp, err := srv.Client().Get(srv.URL + "/rate")
		require.NoError(t, err)
		var got []float64
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		resp.Body.Close()
		assert.Equal(t, []float64{want}, got)
	}
}

func TestServerAddResetAndUpdateResort(t *testing.T) {
	s := New(0.5)
	srv := httptest.NewServer(s)
	defer srv.Close()

	body, err := json.Marshal([]float64{10, 20})
	require.NoError(t, err)
	resp, err := srv.Client().Post(srv.URL+"/add", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/reset", nil)
	require.NoError(t, err)
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	req, err = http.NewRequest(http.MethodPut, srv.URL+"/update-resort/9.5", nil)
	require.NoError(t, err)
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = srv.Client().Get(srv.URL + "/rate")
	require.NoError(t, err)
	var got []float64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, []float64{9.5}, got)
}
