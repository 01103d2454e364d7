package users_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/users-cluster/internal/users"
)

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) message() string {
	var m map[string]string
	Expect(json.Unmarshal(r.body, &m)).To(Succeed())
	return m["message"]
}

func (r response) user() users.User {
	var u users.User
	Expect(json.Unmarshal(r.body, &u)).To(Succeed())
	return u
}

var _ = Describe("Router", func() {
	var (
		store  *users.Store
		server *httptest.Server
	)

	do := func(method, path, body string) response {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequest(method, server.URL+path, reader)
		Expect(err).NotTo(HaveOccurred())

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return response{status: resp.StatusCode, header: resp.Header, body: data}
	}

	create := func(body string) users.User {
		resp := do(http.MethodPost, "/api/users", body)
		Expect(resp.status).To(Equal(http.StatusCreated))
		return resp.user()
	}

	BeforeEach(func() {
		store = users.NewStore()
		logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))
		server = httptest.NewServer(users.NewRouter(store, logger))
	})

	AfterEach(func() {
		server.Close()
	})

	It("should walk a user through its whole lifecycle", func() {
		resp := do(http.MethodGet, "/api/users", "")
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.body).To(MatchJSON(`[]`))

		created := create(`{"username":"John Doe","age":25,"hobbies":["reading","gaming"]}`)
		Expect(created.ID.String()).To(HaveLen(36))

		resp = do(http.MethodGet, "/api/users", "")
		Expect(resp.body).To(MatchJSON(`[{"id":"` + created.ID.String() + `","username":"John Doe","age":25,"hobbies":["reading","gaming"]}]`))

		resp = do(http.MethodGet, "/api/users/"+created.ID.String(), "")
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.user()).To(Equal(created))

		resp = do(http.MethodPut, "/api/users/"+created.ID.String(), `{"username":"Mike Prisson","age":30,"hobbies":["reading","swimming"]}`)
		Expect(resp.status).To(Equal(http.StatusOK))
		updated := resp.user()
		Expect(updated.ID).To(Equal(created.ID))
		Expect(updated.Username).To(Equal("Mike Prisson"))
		Expect(updated.Age).To(Equal(30))
		Expect(updated.Hobbies).To(Equal([]string{"reading", "swimming"}))

		resp = do(http.MethodDelete, "/api/users/"+created.ID.String(), "")
		Expect(resp.status).To(Equal(http.StatusNoContent))
		Expect(resp.body).To(BeEmpty())

		resp = do(http.MethodGet, "/api/users/"+created.ID.String(), "")
		Expect(resp.status).To(Equal(http.StatusNotFound))
		Expect(resp.message()).To(Equal(users.MessageUserNotFound))
	})

	It("should set the JSON and CORS headers on every response", func() {
		for _, resp := range []response{
			do(http.MethodGet, "/api/users", ""),
			do(http.MethodGet, "/api/users/invalid_id", ""),
			do(http.MethodGet, "/nowhere", ""),
		} {
			Expect(resp.header.Get("Content-Type")).To(Equal("application/json"))
			Expect(resp.header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		}
	})

	DescribeTable("invalid ids",
		func(method, path string) {
			resp := do(method, path, `{}`)
			Expect(resp.status).To(Equal(http.StatusBadRequest))
			Expect(resp.message()).To(Equal(users.MessageInvalidID))
		},
		Entry("GET", http.MethodGet, "/api/users/invalid_id"),
		Entry("PUT", http.MethodPut, "/api/users/invalid_id"),
		Entry("DELETE", http.MethodDelete, "/api/users/invalid_id"),
		Entry("GET with an empty id", http.MethodGet, "/api/users/"),
		Entry("PUT with an empty id", http.MethodPut, "/api/users/"),
		Entry("DELETE with an empty id", http.MethodDelete, "/api/users/"),
		Entry("GET with a nested id", http.MethodGet, "/api/users/a/b"),
	)

	It("should reject the urn form of an id", func() {
		resp := do(http.MethodGet, "/api/users/urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8", "")
		Expect(resp.status).To(Equal(http.StatusBadRequest))
	})

	DescribeTable("unknown users",
		func(method, body string) {
			resp := do(method, "/api/users/6ba7b810-9dad-11d1-80b4-00c04fd430c8", body)
			Expect(resp.status).To(Equal(http.StatusNotFound))
			Expect(resp.message()).To(Equal(users.MessageUserNotFound))
		},
		Entry("GET", http.MethodGet, ""),
		Entry("PUT", http.MethodPut, `{"age":3}`),
		Entry("DELETE", http.MethodDelete, ""),
	)

	DescribeTable("POST without the required fields",
		func(body string) {
			resp := do(http.MethodPost, "/api/users", body)
			Expect(resp.status).To(Equal(http.StatusBadRequest))
			Expect(resp.message()).To(Equal(users.MessageMissingFields))
			Expect(store.List()).To(BeEmpty())
		},
		Entry("no age", `{"username":"John Doe","hobbies":["reading","gaming"]}`),
		Entry("no username", `{"age":30,"hobbies":["reading","swimming"]}`),
		Entry("no hobbies", `{"username":"Mike Prisson","age":30}`),
		Entry("empty hobbies", `{"username":"Mike Prisson","age":30,"hobbies":[]}`),
		Entry("hobbies not an array", `{"username":"Mike Prisson","age":30,"hobbies":"chess"}`),
		Entry("age of the wrong type", `{"username":"Mike Prisson","age":"30","hobbies":["chess"]}`),
		Entry("fractional age", `{"username":"Mike Prisson","age":25.5,"hobbies":["chess"]}`),
		Entry("hobbies that are not strings", `{"username":"Mike Prisson","age":30,"hobbies":[1,2]}`),
	)

	DescribeTable("unparseable bodies",
		func(method string, withUser bool) {
			path := "/api/users"
			if withUser {
				path += "/" + create(`{"username":"a","age":1,"hobbies":["b"]}`).ID.String()
			}
			resp := do(method, path, `{"username":`)
			Expect(resp.status).To(Equal(http.StatusInternalServerError))
			Expect(resp.message()).To(Equal(users.MessageInternalServerErr))
		},
		Entry("POST", http.MethodPost, false),
		Entry("PUT", http.MethodPut, true),
	)

	It("should keep current values for fields of the wrong type on PUT", func() {
		created := create(`{"username":"Ann","age":40,"hobbies":["chess"]}`)

		resp := do(http.MethodPut, "/api/users/"+created.ID.String(), `{"username":7,"age":41,"hobbies":"go"}`)
		Expect(resp.status).To(Equal(http.StatusOK))

		updated := resp.user()
		Expect(updated.Username).To(Equal("Ann"))
		Expect(updated.Age).To(Equal(41))
		Expect(updated.Hobbies).To(Equal([]string{"chess"}))

		stored, ok := store.Get(created.ID)
		Expect(ok).To(BeTrue())
		Expect(stored).To(Equal(updated))
	})

	DescribeTable("unknown resources",
		func(method, path string) {
			resp := do(method, path, "")
			Expect(resp.status).To(Equal(http.StatusNotFound))
			Expect(resp.message()).To(Equal(users.MessageResourceNotExist))
		},
		Entry("unknown path", http.MethodGet, "/api/products"),
		Entry("root", http.MethodGet, "/"),
		Entry("unsupported method", http.MethodPatch, "/api/users"),
		Entry("POST on a user", http.MethodPost, "/api/users/6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Entry("POST with a trailing slash", http.MethodPost, "/api/users/"),
	)
})
