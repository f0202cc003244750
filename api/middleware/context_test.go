package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTerminalRequiresHeaders(t *testing.T) {
	tests := []struct {
		name     string
		cashier  string
		terminal string
		want     int
	}{
		{"missing cashier", "", "till-1", http.StatusUnauthorized},
		{"missing terminal", "cashier-1", "", http.StatusBadRequest},
		{"both present", "cashier-1", "till-1", http.StatusOK},
		{"terminal with spaces", "cashier-1", "till 1", http.StatusBadRequest},
		{"cashier with markup", "<script>", "till-1", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		var gotCashier, gotTerminal string
		handler := Terminal(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCashier = CashierIDFromContext(r.Context())
			gotTerminal = TerminalIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		if tt.cashier != "" {
			req.Header.Set(CashierHeader, " "+tt.cashier+" ")
		}
		if tt.terminal != "" {
			req.Header.Set(TerminalHeader, tt.terminal)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.want, rec.Code)
		}
		if tt.want == http.StatusOK && (gotCashier != tt.cashier || gotTerminal != tt.terminal) {
			t.Fatalf("%s: context carried %q/%q", tt.name, gotCashier, gotTerminal)
		}
	}
}
