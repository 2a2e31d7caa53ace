package analysis

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/ocr-analytics/internal/classify"
	"github.com/zombor/ocr-analytics/internal/ocr"
)

type uploadFile struct {
	filename string
	data     []byte
}

func multipartBody(files ...uploadFile) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		part, err := writer.CreateFormFile("file", f.filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(f.data)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var anyPath = regexp.MustCompile(`^/.*$`)

func decodeBody(resp *http.Response, v any) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, v)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		analyzer    *mockAnalyzer
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		analyzer = newMockAnalyzer()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		service := NewServiceWithOptions(db, analyzer, storage, Options{
			IDGenerator: &mockIDGenerator{id: "test-id"},
			TimeSource:  &mockTimeSource{now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)},
		})
		server := NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, anyPath, server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	upload := func(path string, files ...uploadFile) *http.Response {
		body, contentType := multipartBody(files...)
		resp, err := http.Post(ghttpServer.URL()+path, contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("POST /api/analyses", func() {
		var resp *http.Response

		When("a PNG is uploaded", func() {
			JustBeforeEach(func() {
				resp = upload("/api/analyses", uploadFile{"receipt.png", pngBytes()})
			})

			It("should return status Created", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				resp.Body.Close()
			})

			It("should return the classified analysis", func() {
				var analysis Analysis
				decodeBody(resp, &analysis)
				Expect(analysis.ID).To(Equal("test-id"))
				Expect(analysis.ContentType).To(Equal("image/png"))
				Expect(analysis.Result.Categories[classify.Amounts]).To(Equal([]string{"Total Amount: $250.00"}))
				Expect(analysis.Result.Categories).To(HaveLen(len(classify.Categories)))
			})

			It("should set CORS headers", func() {
				Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
				resp.Body.Close()
			})
		})

		When("a PDF is uploaded", func() {
			JustBeforeEach(func() {
				resp = upload("/api/analyses", uploadFile{"statement.pdf", []byte("%PDF-1.4\n%fake")})
			})

			It("should return status Unsupported Media Type", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
				var body map[string]string
				decodeBody(resp, &body)
				Expect(body["error"]).To(ContainSubstring("application/pdf"))
			})
		})

		DescribeTable("provider errors",
			func(providerErr error, status int) {
				analyzer.err = providerErr

				resp := upload("/api/analyses", uploadFile{"receipt.png", pngBytes()})
				Expect(resp.StatusCode).To(Equal(status))
				var body map[string]string
				decodeBody(resp, &body)
				Expect(body).To(HaveKey("error"))
			},
			Entry("failed operation", &ocr.AnalysisFailedError{Handle: "op"}, http.StatusUnprocessableEntity),
			Entry("submission failure", &ocr.SubmissionError{Op: "submit", Err: errors.New("refused")}, http.StatusBadGateway),
			Entry("other failure", errors.New("boom"), http.StatusInternalServerError),
		)

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("note", "nothing")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				resp, err := http.Post(ghttpServer.URL()+"/api/analyses", writer.FormDataContentType(), body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the body is not multipart", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/analyses", "text/plain", strings.NewReader("hello"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("POST /api/analyses/batch", func() {
		It("should return one item per file in order", func() {
			resp := upload("/api/analyses/batch",
				uploadFile{"a.png", pngBytes()},
				uploadFile{"b.pdf", []byte("%PDF-1.4")},
			)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var items []BatchItem
			decodeBody(resp, &items)
			Expect(items).To(HaveLen(2))
			Expect(items[0].Filename).To(Equal("a.png"))
			Expect(items[0].Analysis).NotTo(BeNil())
			Expect(items[1].Filename).To(Equal("b.pdf"))
			Expect(items[1].Error).NotTo(BeEmpty())
		})

		It("should reject a request without files", func() {
			resp := upload("/api/analyses/batch")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("GET /api/analyses", func() {
		When("analyses exist", func() {
			BeforeEach(func() {
				db.analyses["id1"] = &Analysis{ID: "id1"}
				db.analyses["id2"] = &Analysis{ID: "id2"}
			})

			It("should return all analyses", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/analyses")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				var analyses []*Analysis
				decodeBody(resp, &analyses)
				Expect(analyses).To(HaveLen(2))
			})
		})

		When("no analyses exist", func() {
			It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/analyses")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/analyses")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	Describe("GET /api/analyses/{id}", func() {
		BeforeEach(func() {
			db.analyses["id1"] = &Analysis{ID: "id1", Provider: "mock"}
		})

		It("should return the analysis", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/analyses/id1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var analysis Analysis
			decodeBody(resp, &analysis)
			Expect(analysis.Provider).To(Equal("mock"))
		})

		It("should return status Not Found for an unknown id", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/analyses/missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			var body map[string]string
			decodeBody(resp, &body)
			Expect(body["error"]).To(Equal("Analysis not found"))
		})
	})

	Describe("GET /api/analyses/{id}/file", func() {
		BeforeEach(func() {
			db.analyses["id1"] = &Analysis{ID: "id1", Filename: "id1_receipt.png", ContentType: "image/png"}
			storage.files["id1_receipt.png"] = []byte("image-bytes")
		})

		It("should return the stored image", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/analyses/id1/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal([]byte("image-bytes")))
		})

		It("should return status Not Found for an unknown id", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/analyses/missing/file")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		When("the stored image is gone", func() {
			BeforeEach(func() {
				storage.getErr = fmt.Errorf("reading file: %w", fs.ErrNotExist)
			})

			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/analyses/id1/file")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})

		When("reading the stored image fails", func() {
			BeforeEach(func() {
				storage.getErr = errors.New("input/output error")
			})

			It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/analyses/id1/file")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				var body map[string]string
				decodeBody(resp, &body)
				Expect(body["error"]).To(Equal("Error reading file"))
			})
		})
	})

	Describe("DELETE /api/analyses/{id}", func() {
		BeforeEach(func() {
			db.analyses["id1"] = &Analysis{ID: "id1", Filename: "id1_receipt.png"}
			storage.files["id1_receipt.png"] = []byte("image-bytes")
		})

		deleteRequest := func(id string) *http.Response {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/analyses/"+id, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("should delete the analysis and its image", func() {
			resp := deleteRequest("id1")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
			Expect(db.analyses).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		It("should return status Not Found for an unknown id", func() {
			resp := deleteRequest("missing")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("POST /api/classify", func() {
		post := func(body string) *http.Response {
			resp, err := http.Post(ghttpServer.URL()+"/api/classify", "application/json", strings.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("should classify raw text", func() {
			resp := post(`{"text": "John Smith\nPaid 100 EUR"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result classify.Result
			decodeBody(resp, &result)
			Expect(result.Categories[classify.Names]).To(Equal([]string{"John Smith"}))
			Expect(result.Categories[classify.Amounts]).To(Equal([]string{"Paid 100 EUR"}))
		})

		It("should classify a provider document", func() {
			resp := post(`{"document": {"status": "succeeded", "analyzeResult": {"readResults": [
				{"page": 1, "lines": [{"text": "Order 5521"}, {"text": "42 Elm Ave"}]}
			]}}}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result classify.Result
			decodeBody(resp, &result)
			Expect(result.RawText).To(Equal("Order 5521\n42 Elm Ave"))
			Expect(result.Categories[classify.InvoiceNumbers]).To(Equal([]string{"Order 5521"}))
			Expect(result.Categories[classify.Addresses]).To(Equal([]string{"42 Elm Ave"}))
		})

		It("should accept empty text", func() {
			resp := post(`{"text": ""}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result classify.Result
			decodeBody(resp, &result)
			Expect(result.Categories.Total()).To(BeZero())
		})

		It("should reject a request with neither field", func() {
			resp := post(`{}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})

		It("should reject invalid JSON", func() {
			resp := post(`{`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("GET /healthz", func() {
		It("should report the provider", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var body map[string]string
			decodeBody(resp, &body)
			Expect(body).To(Equal(map[string]string{"status": "ok", "provider": "mock"}))
		})
	})

	Describe("GET /metrics", func() {
		It("should count analyses by outcome", func() {
			upload("/api/analyses", uploadFile{"receipt.png", pngBytes()}).Body.Close()
			upload("/api/analyses", uploadFile{"statement.pdf", []byte("%PDF-1.4")}).Body.Close()

			resp, err := http.Get(ghttpServer.URL() + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`ocr_analytics_analyses_total{outcome="succeeded"} 1`))
			Expect(string(body)).To(ContainSubstring(`ocr_analytics_analyses_total{outcome="unsupported_input"} 1`))
			Expect(string(body)).To(ContainSubstring(`ocr_analytics_classified_lines_total{category="dates"} 1`))
		})
	})

	Describe("OPTIONS preflight", func() {
		It("should answer with No Content and CORS headers", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/analyses", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("DELETE"))
			resp.Body.Close()
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		get := func(path, credentials string) *http.Response {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+path, nil)
			Expect(err).NotTo(HaveOccurred())
			if credentials != "" {
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
			}
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("should reject missing credentials", func() {
			resp := get("/api/analyses", "")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			resp.Body.Close()
		})

		It("should reject wrong credentials", func() {
			resp := get("/api/analyses", "admin:wrong")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("should accept valid credentials", func() {
			resp := get("/api/analyses", "admin:secret")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})

		It("should leave the health probe open", func() {
			resp := get("/healthz", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})
})
