package staff

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/mockapi"
	"github.com/mmeshcher/nexuspay-client/internal/model"
	"github.com/mmeshcher/nexuspay-client/internal/notify"
	"github.com/mmeshcher/nexuspay-client/internal/store"
	"github.com/mmeshcher/nexuspay-client/internal/validation"
)

func clientAs(t *testing.T, url string, srv *mockapi.Server, email string) *gateway.Client {
	t.Helper()
	client, err := gateway.NewClient(gateway.Options{BaseURL: url, AllowInsecure: true}, gateway.NewCredentials(store.NewMemory()))
	require.NoError(t, err)
	token, err := srv.TokenFor(email)
	require.NoError(t, err)
	require.NoError(t, client.Credentials().Set(context.Background(), token))
	return client
}

func newRemote(t *testing.T) (*mockapi.Server, string) {
	t.Helper()
	srv := mockapi.New(mockapi.Options{})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func submitPayment(t *testing.T, client *gateway.Client) string {
	t.Helper()
	ref, err := client.SubmitInternational(context.Background(), gateway.InternationalPaymentRequest{
		CreatePaymentRequest: gateway.CreatePaymentRequest{Amount: "100", Currency: "EUR", Provider: gateway.ProviderSWIFT, IdempotencyKey: t.Name()},
		SubmitPaymentRequest: gateway.SubmitPaymentRequest{Reference: "INV-1", Purpose: "Services"},
		Beneficiary: gateway.BeneficiaryUpdate{
			FullName:      "Hans Muller",
			BankName:      "Deutsche Bank",
			SwiftCode:     "DEUTDEFF",
			AccountNumber: "1122334455",
			Address:       "Hauptstrasse 1",
			City:          "Berlin",
			PostalCode:    "10115",
			Country:       "DE",
		},
	})
	require.NoError(t, err)
	return ref.PaymentID
}

func TestPortal_VerifyAndSubmitToSwift(t *testing.T) {
	srv, url := newRemote(t)
	ctx := context.Background()
	id := submitPayment(t, clientAs(t, url, srv, mockapi.CustomerNoMFAEmail))

	feed := notify.NewFeed(10, nil)
	portal := NewPortal(clientAs(t, url, srv, mockapi.StaffEmail), feed, nil)

	page, err := portal.Queue(ctx, gateway.QueuePending, 1, 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, id, page.Items[0].ID)
	assert.True(t, validation.IsMaskedAccountNumber(page.Items[0].AccountNumberMasked))

	ref, err := portal.Verify(ctx, id, gateway.VerifyApprove)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusVerified, ref.Status)

	_, err = portal.Verify(ctx, id, gateway.VerifyApprove)
	require.True(t, gateway.IsKind(err, gateway.KindConflict), "got %v", err)

	ref, err = portal.SubmitToSwift(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSubmittedToSwift, ref.Status)

	page, err = portal.Queue(ctx, gateway.QueueSwift, 1, 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	notes := feed.Since(0)
	require.Len(t, notes, 3)
	assert.Equal(t, notify.SeveritySuccess, notes[0].Severity)
	assert.Equal(t, notify.SeverityError, notes[1].Severity)
	assert.Equal(t, "payment is in status verified", notes[1].Message)
	assert.Equal(t, notify.SeveritySuccess, notes[2].Severity)
}

func TestPortal_CustomerIsForbidden(t *testing.T) {
	srv, url := newRemote(t)
	client := clientAs(t, url, srv, mockapi.CustomerNoMFAEmail)
	portal := NewPortal(client, nil, nil)

	_, err := portal.Queue(context.Background(), gateway.QueuePending, 1, 50)
	require.True(t, gateway.IsKind(err, gateway.KindForbidden), "got %v", err)
	assert.True(t, client.Credentials().Present(), "403 keeps the credential")
}

type blockingPortalAPI struct {
	PortalAPI
	started chan struct{}
	release chan struct{}
}

func (b *blockingPortalAPI) VerifyPayment(_ context.Context, id string, _ gateway.VerifyAction) (*gateway.PaymentRef, error) {
	b.started <- struct{}{}
	<-b.release
	return &gateway.PaymentRef{PaymentID: id, Status: model.PaymentStatusVerified}, nil
}

func (b *blockingPortalAPI) SubmitToSwift(_ context.Context, id string) (*gateway.PaymentRef, error) {
	return &gateway.PaymentRef{PaymentID: id, Status: model.PaymentStatusSubmittedToSwift}, nil
}

func TestPortal_DoubleSubmitGuard(t *testing.T) {
	api := &blockingPortalAPI{started: make(chan struct{}), release: make(chan struct{})}
	portal := NewPortal(api, nil, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := portal.Verify(ctx, "P-1", gateway.VerifyApprove)
		done <- err
	}()

	select {
	case <-api.started:
	case <-time.After(time.Second):
		t.Fatal("verify was not called")
	}

	assert.True(t, portal.Busy("P-1"))
	_, err := portal.Verify(ctx, "P-1", gateway.VerifyReject)
	assert.ErrorIs(t, err, ErrInFlight)
	_, err = portal.SubmitToSwift(ctx, "P-1")
	assert.ErrorIs(t, err, ErrInFlight)

	_, err = portal.SubmitToSwift(ctx, "P-2")
	assert.NoError(t, err, "other payments are not blocked")

	close(api.release)
	require.NoError(t, <-done)
	assert.False(t, portal.Busy("P-1"))
}

func TestValidateStaff(t *testing.T) {
	tests := []struct {
		name    string
		in      gateway.StaffInput
		partial bool
		field   string
	}{
		{
			name: "valid",
			in:   gateway.StaffInput{FullName: "Sam Lee", StaffID: "STF-100", Email: "sam@nexuspay.dev", Password: "Str0ng!Passw0rd"},
		},
		{
			name:  "lower case staff id",
			in:    gateway.StaffInput{FullName: "Sam Lee", StaffID: "stf-100", Password: "Str0ng!Passw0rd"},
			field: "staffId",
		},
		{
			name:  "weak password",
			in:    gateway.StaffInput{FullName: "Sam Lee", StaffID: "STF-100", Password: "short"},
			field: "password",
		},
		{
			name:    "partial update of name only",
			in:      gateway.StaffInput{FullName: "Sam Lee"},
			partial: true,
		},
		{
			name:    "partial update with bad email",
			in:      gateway.StaffInput{Email: "not-an-email"},
			partial: true,
			field:   "email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStaff(tt.in, tt.partial)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var fe validation.FieldErrors
			require.ErrorAs(t, err, &fe)
			assert.Contains(t, fe, tt.field)
		})
	}
}

func TestConsole_CRUD(t *testing.T) {
	srv, url := newRemote(t)
	ctx := context.Background()
	feed := notify.NewFeed(10, nil)
	console := NewConsole(clientAs(t, url, srv, mockapi.AdminEmail), feed, nil)

	_, err := console.Create(ctx, gateway.StaffInput{FullName: "Sam Lee", StaffID: "STF-100", Password: "weak"})
	require.Error(t, err)
	assert.Zero(t, srv.Calls(http.MethodPost, "/admin/staff"), "invalid input never reaches the network")

	m, err := console.Create(ctx, gateway.StaffInput{FullName: "Sam Lee", StaffID: "STF-100", Email: "sam@nexuspay.dev", Password: "Str0ng!Passw0rd"})
	require.NoError(t, err)
	assert.Equal(t, "STF-100", m.StaffID)

	_, err = console.Create(ctx, gateway.StaffInput{FullName: "Sam Lee", StaffID: "STF-100", Password: "Str0ng!Passw0rd"})
	require.True(t, gateway.IsKind(err, gateway.KindConflict), "got %v", err)

	items, err := console.List(ctx, "sam")
	require.NoError(t, err)
	require.Len(t, items, 1)

	m, err = console.Update(ctx, m.ID, gateway.StaffInput{FullName: "Samantha Lee"})
	require.NoError(t, err)
	assert.Equal(t, "Samantha Lee", m.FullName)

	require.NoError(t, console.Delete(ctx, m.ID))
	items, err = console.List(ctx, "sam")
	require.NoError(t, err)
	assert.Empty(t, items)

	var errorsSeen int
	for _, n := range feed.Since(0) {
		if n.Severity == notify.SeverityError {
			errorsSeen++
		}
	}
	assert.Equal(t, 1, errorsSeen)
}
