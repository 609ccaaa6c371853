package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func propertyAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/properties/0660640130020", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"account":               "0660640130020",
				"site_address":          "8214 Oak Moss Dr",
				"neighborhood_code":     "8322.01",
				"year_improved":         1995,
				"building_sqft":         2100,
				"total_appraised_value": "250000",
			},
		})
	})

	mux.HandleFunc("GET /api/v1/properties/0660640130020/comparables", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"closest_by_age": []map[string]interface{}{
					{
						"candidate": map[string]interface{}{
							"account":       "1111111111111",
							"address":       "8218 Oak Moss Dr",
							"year_improved": 1996,
							"building_sqft": 2050,
						},
						"total_adjusted_value": "232000",
						"adjusted_psf":         "113.17",
					},
				},
				"closest_by_sqft": []map[string]interface{}{},
				"lowest_by_value": []map[string]interface{}{},
			},
		})
	})

	mux.HandleFunc("GET /api/v1/properties/9999999999999", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   map[string]string{"code": "PROP_001", "message": "property not found"},
		})
	})

	return httptest.NewServer(mux)
}

func TestPropertyGetCmd(t *testing.T) {
	srv := propertyAPIServer(t)
	defer srv.Close()

	out, err := runCommand(t, NewPropertyCmd(), testContext(t, srv, "text"), "get", "0660640130020")
	require.NoError(t, err)

	assert.Contains(t, out, "Account:          0660640130020")
	assert.Contains(t, out, "8214 Oak Moss Dr")
	assert.Contains(t, out, "Appraised Value:  $250,000")
}

func TestPropertyGetCmd_NotFound(t *testing.T) {
	srv := propertyAPIServer(t)
	defer srv.Close()

	_, err := runCommand(t, NewPropertyCmd(), testContext(t, srv, "text"), "get", "9999999999999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROP_001")
}

func TestPropertyComparablesCmd(t *testing.T) {
	srv := propertyAPIServer(t)
	defer srv.Close()

	out, err := runCommand(t, NewPropertyCmd(), testContext(t, srv, "text"), "comparables", "0660640130020")
	require.NoError(t, err)

	assert.Contains(t, out, "Closest by age (1)")
	assert.Contains(t, out, "1111111111111")
	assert.Contains(t, out, "$232,000")
	assert.Contains(t, out, "Closest by square footage (0)")
}

func TestPropertyGetCmd_JSONOutput(t *testing.T) {
	srv := propertyAPIServer(t)
	defer srv.Close()

	out, err := runCommand(t, NewPropertyCmd(), testContext(t, srv, "json"), "get", "0660640130020")
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "0660640130020", decoded["account"])
}
