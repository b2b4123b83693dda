package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/minibank/ledger-service/internal/domain"
)

type mockUserStore struct {
	user      *domain.User
	updateErr error
	updated   *domain.User
}

func (m *mockUserStore) GetByID(_ context.Context, _ uuid.UUID) (*domain.User, error) {
	if m.user == nil {
		return nil, domain.ErrNotFound
	}
	u := *m.user
	return &u, nil
}

func (m *mockUserStore) Update(_ context.Context, user *domain.User) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = user
	return nil
}

func testUser(id uuid.UUID) *domain.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte("original-pass"), bcrypt.MinCost)
	return &domain.User{
		ID:           id,
		Email:        "owner@test.com",
		Name:         "Owner",
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
}

func TestMe(t *testing.T) {
	userID := uuid.New()
	h := NewUserHandler(&mockUserStore{user: testUser(userID)})

	rec := httptest.NewRecorder()
	h.Me(rec, authedRequest(http.MethodGet, "/api/v1/auth/me", "", userID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestUpdateMe(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name       string
		body       string
		store      *mockUserStore
		wantStatus int
		wantCode   string
	}{
		{
			name:       "rename",
			body:       `{"name":"New Name"}`,
			store:      &mockUserStore{user: testUser(userID)},
			wantStatus: http.StatusOK,
		},
		{
			name:       "empty name rejected",
			body:       `{"name":""}`,
			store:      &mockUserStore{user: testUser(userID)},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "short password rejected",
			body:       `{"password":"short"}`,
			store:      &mockUserStore{user: testUser(userID)},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "email already in use",
			body:       `{"email":"taken@test.com"}`,
			store:      &mockUserStore{user: testUser(userID), updateErr: domain.ErrEmailTaken},
			wantStatus: http.StatusConflict,
			wantCode:   "EMAIL_TAKEN",
		},
		{
			name:       "malformed body",
			body:       `{"name":`,
			store:      &mockUserStore{user: testUser(userID)},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewUserHandler(tc.store)
			rec := httptest.NewRecorder()
			h.UpdateMe(rec, authedRequest(http.MethodPut, "/api/v1/auth/me", tc.body, userID))

			require.Equal(t, tc.wantStatus, rec.Code)
			var resp APIResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestUpdateMe_RehashesPassword(t *testing.T) {
	userID := uuid.New()
	store := &mockUserStore{user: testUser(userID)}
	h := NewUserHandler(store)

	rec := httptest.NewRecorder()
	h.UpdateMe(rec, authedRequest(http.MethodPut, "/api/v1/auth/me", `{"password":"brand-new-pass"}`, userID))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.updated)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.updated.PasswordHash), []byte("brand-new-pass")))
	assert.Equal(t, "owner@test.com", store.updated.Email, "absent fields keep their value")
}
