package extract

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		accounts []string
		services []string
		codes    []string
		phones   []string
		amounts  []float64
	}{
		{
			name:     "every entity kind",
			text:     "Account ACC-12345 has error NET-500 on service SVC001. Call 555-123-4567. Charged $150.00.",
			accounts: []string{"ACC-12345"},
			services: []string{"SVC001"},
			codes:    []string{"ACC-12345", "NET-500"},
			phones:   []string{"555-123-4567"},
			amounts:  []float64{150},
		},
		{
			name:     "case insensitive account and service",
			text:     "acc-77 and svc003 are affected",
			accounts: []string{"acc-77"},
			services: []string{"svc003"},
			codes:    []string{},
			phones:   []string{},
			amounts:  []float64{},
		},
		{
			name:     "thousands separators",
			text:     "Invoice shows $2,500.00 instead of $1,250 and $99.99",
			accounts: []string{},
			services: []string{},
			codes:    []string{},
			phones:   []string{},
			amounts:  []float64{2500, 1250, 99.99},
		},
		{
			name:     "nothing to extract",
			text:     "my internet is slow",
			accounts: []string{},
			services: []string{},
			codes:    []string{},
			phones:   []string{},
			amounts:  []float64{},
		},
		{
			name:     "multiple error codes",
			text:     "Saw AUTH-202 then DNS-404 twice",
			accounts: []string{},
			services: []string{},
			codes:    []string{"AUTH-202", "DNS-404"},
			phones:   []string{},
			amounts:  []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Extract(tt.text)
			if !slices.Equal(got.AccountNumbers, tt.accounts) {
				t.Errorf("AccountNumbers = %v, want %v", got.AccountNumbers, tt.accounts)
			}
			if !slices.Equal(got.ServiceIDs, tt.services) {
				t.Errorf("ServiceIDs = %v, want %v", got.ServiceIDs, tt.services)
			}
			if !slices.Equal(got.ErrorCodes, tt.codes) {
				t.Errorf("ErrorCodes = %v, want %v", got.ErrorCodes, tt.codes)
			}
			if !slices.Equal(got.PhoneNumbers, tt.phones) {
				t.Errorf("PhoneNumbers = %v, want %v", got.PhoneNumbers, tt.phones)
			}
			if !slices.Equal(got.MonetaryAmounts, tt.amounts) {
				t.Errorf("MonetaryAmounts = %v, want %v", got.MonetaryAmounts, tt.amounts)
			}
		})
	}
}

func TestExtract_EmptyReportsEmpty(t *testing.T) {
	t.Parallel()

	if !Extract("").Empty() {
		t.Error("Extract(\"\").Empty() = false")
	}
	if Extract("SVC002").Empty() {
		t.Error("Extract(SVC002).Empty() = true")
	}
}

func TestRegex_Extract(t *testing.T) {
	t.Parallel()

	tk, err := ticket.NewTicket("TKT-005", "CUST005", "Billing on SVC003", "Charged $45.50 twice", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	got, err := Regex{}.Extract(context.Background(), tk)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !slices.Equal(got.ServiceIDs, []string{"SVC003"}) || !slices.Equal(got.MonetaryAmounts, []float64{45.5}) {
		t.Errorf("Extract() = %+v", got)
	}
}
