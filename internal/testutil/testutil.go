package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"meditrack-backend/database"
	"meditrack-backend/internal/models"
)

const (
	TestJWTSecret   = "test-jwt-secret-key-12345678901234567890"
	TestAdminDomain = "@meditrack.com"
	TestPassword    = "Password123"
)

// TestUser represents a test user
type TestUser struct {
	ID        string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// TestDatabase manages test database setup and teardown
type TestDatabase struct {
	DB *sql.DB
	t  *testing.T
}

// SetupTestDatabase creates a migrated in-memory SQLite database closed at the end of the test
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()

	db, err := database.Initialize(":memory:")
	require.NoError(t, err, "failed to open test database")
	require.NoError(t, database.Migrate(db), "failed to migrate test database")

	t.Cleanup(func() { db.Close() })
	return &TestDatabase{DB: db, t: t}
}

// CreateTestUser inserts a password account with a profile
func (td *TestDatabase) CreateTestUser(email string) TestUser {
	td.t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(td.t, err)

	user := TestUser{
		ID:        uuid.New().String(),
		Email:     email,
		Password:  TestPassword,
		FirstName: "Test",
		LastName:  "User",
	}
	now := time.Now().UTC()

	_, err = td.DB.Exec(`
		INSERT INTO users (id, email, password_hash, provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, string(hash), models.AuthProviderPassword, now, now)
	require.NoError(td.t, err)

	_, err = td.DB.Exec(`
		INSERT INTO user_profiles (user_id, first_name, last_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.FirstName, user.LastName, now, now)
	require.NoError(td.t, err)

	return user
}

// CreateTestCategory inserts a category and returns its ID
func (td *TestDatabase) CreateTestCategory(name, slug string) int64 {
	td.t.Helper()

	result, err := td.DB.Exec(`
		INSERT INTO categories (name, slug, description, created_at) VALUES (?, ?, ?, ?)`,
		name, slug, name+" products", time.Now().UTC())
	require.NoError(td.t, err)

	id, err := result.LastInsertId()
	require.NoError(td.t, err)
	return id
}

// ProductFixture describes a product inserted directly into the database
type ProductFixture struct {
	Name       string
	Slug       string
	Price      float64
	Stock      int
	CategoryID *int64
	CreatedAt  time.Time
}

// CreateTestProduct inserts a product and returns its ID
func (td *TestDatabase) CreateTestProduct(p ProductFixture) int64 {
	td.t.Helper()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	result, err := td.DB.Exec(`
		INSERT INTO products (name, slug, description, price, stock, category_id, is_prescription,
			image_url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		p.Name, p.Slug, "Test product", p.Price, p.Stock, p.CategoryID,
		models.DefaultImageURL(p.Name), models.StatusForStock(p.Stock), p.CreatedAt, p.CreatedAt)
	require.NoError(td.t, err)

	id, err := result.LastInsertId()
	require.NoError(td.t, err)
	return id
}

// ProductStock reads a product's current stock and status
func (td *TestDatabase) ProductStock(id int64) (int, models.ProductStatus) {
	td.t.Helper()

	var (
		stock  int
		status models.ProductStatus
	)
	require.NoError(td.t, td.DB.QueryRow("SELECT stock, status FROM products WHERE id = ?", id).Scan(&stock, &status))
	return stock, status
}

// Count returns the number of rows in table
func (td *TestDatabase) Count(table string) int {
	td.t.Helper()

	var n int
	require.NoError(td.t, td.DB.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// AddressFixture returns a complete shipping address
func AddressFixture() models.ShippingAddress {
	return models.ShippingAddress{
		FirstName: "Jane",
		LastName:  "Doe",
		Address:   "12 Main Street",
		City:      "Springfield",
		State:     "IL",
		ZipCode:   "62701",
		Country:   "USA",
	}
}

// MakeRequest makes an HTTP request to the test server
func MakeRequest(handler http.Handler, method, url string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req := httptest.NewRequest(method, url, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// BearerHeader returns an Authorization header for token
func BearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// AssertSuccessResponse asserts that the response is successful
func AssertSuccessResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) map[string]interface{} {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, w.Body.String())

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, true, response["success"])

	return response
}

// AssertErrorResponse asserts that the response is an error
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) map[string]interface{} {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, w.Body.String())

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, false, response["success"])

	return response
}

// DecodeData unmarshals the data field of a success envelope into dest
func DecodeData(t *testing.T, w *httptest.ResponseRecorder, dest any) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}
