package receipt_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/expense-tracker/internal/auth"
	"github.com/zombor/expense-tracker/internal/receipt"
	"github.com/zombor/expense-tracker/internal/scanning"
)

// stubScanner returns fixed receipt data
type stubScanner struct {
	receiptData *scanning.ReceiptData
	scanErr     error
}

func (m *stubScanner) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*scanning.ReceiptData, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.receiptData, nil
}

func (m *stubScanner) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		db       receipt.DB
		store    receipt.Storage
		scanner  *stubScanner
		server   *receipt.Server
		ghServer *ghttp.Server
	)

	// send routes exactly one request through the real server
	send := func(method, path string, body io.Reader, contentType string) *http.Response {
		ghServer.AppendHandlers(server.ServeHTTP)
		req, err := http.NewRequest(method, ghServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	upload := func(filename string, content []byte) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(content)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())
		return send("POST", "/api/receipts", body, writer.FormDataContentType())
	}

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "expense-tracker-test-*")
		Expect(err).NotTo(HaveOccurred())

		db, err = receipt.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = receipt.NewLocalStorage(filepath.Join(tempDir, "receipts"))
		Expect(err).NotTo(HaveOccurred())

		scanner = &stubScanner{
			receiptData: &scanning.ReceiptData{
				LocationName: "Harbor Diner",
				Address:      "12 Pier Rd",
				Items:        "pancakes, coffee",
				Date:         "2024-03-20",
				Amount:       42.50,
			},
		}

		server = receipt.NewServer(receipt.NewService(db, scanner, store), nil)
		ghServer = ghttp.NewServer()
	})

	AfterEach(func() {
		if ghServer != nil {
			ghServer.Close()
		}
		if db != nil {
			db.Close()
		}
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
	})

	It("takes a receipt from upload through confirmation, edit and deletion", func() {
		fileContent := []byte("%PDF-1.4 fake pdf content")

		By("uploading the image")
		resp := upload("diner.pdf", fileContent)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var created receipt.Receipt
		decode(resp, &created)
		Expect(created.ID).NotTo(BeEmpty())
		Expect(created.OwnerID).To(Equal(auth.LocalUserID))
		Expect(created.LocationName).To(Equal("Harbor Diner"))
		Expect(created.Amount).To(Equal("42.50"))
		Expect(created.ContentType).To(Equal("application/pdf"))
		Expect(created.IsConfirmed).To(BeFalse())

		stored, err := store.Get(context.Background(), created.ImageBucket)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(Equal(fileContent))

		By("confirming the extracted fields")
		resp = send("POST", "/api/receipts/"+created.ID+"/confirm", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var confirmed receipt.Receipt
		decode(resp, &confirmed)
		Expect(confirmed.IsConfirmed).To(BeTrue())
		Expect(confirmed.Date.Format("2006-01-02")).To(Equal("2024-03-20"))

		By("editing the amount")
		resp = send("PUT", "/api/receipts/"+created.ID, strings.NewReader(`{"amount": "$1,042.5"}`), "application/json")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var edited receipt.Receipt
		decode(resp, &edited)
		Expect(edited.Amount).To(Equal("1042.50"))
		Expect(edited.LocationName).To(Equal("Harbor Diner"))

		saved, err := db.GetReceipt(created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.Amount).To(Equal("1042.50"))
		Expect(saved.IsConfirmed).To(BeTrue())

		By("listing receipts")
		resp = send("GET", "/api/receipts", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var receipts []receipt.Receipt
		decode(resp, &receipts)
		Expect(receipts).To(HaveLen(1))
		Expect(receipts[0].ID).To(Equal(created.ID))

		By("downloading the file")
		resp = send("GET", created.ImageURL, nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(Equal(fileContent))

		By("deleting the receipt")
		resp = send("DELETE", "/api/receipts/"+created.ID, nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		resp.Body.Close()

		_, err = db.GetReceipt(created.ID)
		Expect(receipt.IsNotFound(err)).To(BeTrue())
		_, err = store.Get(context.Background(), created.ImageBucket)
		Expect(err).To(HaveOccurred())
	})

	It("keeps an upload whose scan failed so the user can fill it in", func() {
		scanner.scanErr = io.ErrUnexpectedEOF

		resp := upload("blurry.jpg", []byte("not really a jpeg"))
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var created receipt.Receipt
		decode(resp, &created)
		Expect(created.LocationName).To(BeEmpty())
		Expect(created.Date).To(BeNil())

		By("refusing to confirm until the fields are filled")
		resp = send("POST", "/api/receipts/"+created.ID+"/confirm", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		resp.Body.Close()

		resp = send("PUT", "/api/receipts/"+created.ID, strings.NewReader(
			`{"date": "2024-02-01", "location_name": "Pharmacy", "address": "3 Elm St", "items": "bandages", "amount": "8"}`,
		), "application/json")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var edited receipt.Receipt
		decode(resp, &edited)
		Expect(edited.IsConfirmed).To(BeTrue())
		Expect(edited.Amount).To(Equal("8.00"))
	})
})
