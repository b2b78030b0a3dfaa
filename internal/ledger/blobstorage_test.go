package ledger

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// Azurite's well-known development account
const (
	azuriteAccount = "devstoreaccount1"
	azuriteKey     = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

var _ = Describe("BlobStorage", func() {
	var (
		server  *ghttp.Server
		storage *BlobStorage
	)

	blobPath := "/" + azuriteAccount + "/bills/alice/id-1_bill.png"

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		storage, err = NewBlobStorage(server.URL()+"/"+azuriteAccount, "bills", azuriteAccount, azuriteKey)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires a service URL and container", func() {
		_, err := NewBlobStorage("", "bills", azuriteAccount, azuriteKey)
		Expect(err).To(HaveOccurred())
	})

	It("should upload a blob under the storage path", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPut, blobPath),
			ghttp.VerifyBody([]byte("bill image")),
			ghttp.RespondWith(http.StatusCreated, nil),
		))

		path, err := storage.Save("alice/id-1_bill.png", []byte("bill image"))
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("alice/id-1_bill.png"))
	})

	It("should download a blob", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, blobPath),
			ghttp.RespondWith(http.StatusOK, "bill image"),
		))

		data, err := storage.Get("alice/id-1_bill.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("bill image"))
	})

	It("returns ErrNotFound for a missing blob", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, nil, http.Header{
			"X-Ms-Error-Code": []string{"BlobNotFound"},
		}))

		_, err := storage.Get("alice/id-1_bill.png")
		Expect(err).To(MatchError(ErrNotFound))
		Expect(err).To(MatchError(ContainSubstring("reading file")))
	})

	It("should delete a blob", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodDelete, blobPath),
			ghttp.RespondWith(http.StatusAccepted, nil),
		))

		Expect(storage.Delete("alice/id-1_bill.png")).To(Succeed())
	})
})
