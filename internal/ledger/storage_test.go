package ledger

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			name      string
			savedPath string
			err       error
		)

		BeforeEach(func() {
			name = "alice/exp-1_bill.png"
		})

		JustBeforeEach(func() {
			savedPath, err = storage.Save(name, []byte("bill image"))
		})

		When("the path is nested", func() {
			It("should return the storage path", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedPath).To(Equal(name))
			})

			It("should create the user directory", func() {
				Expect(filepath.Join(tmpDir, "alice", "exp-1_bill.png")).To(BeAnExistingFile())
			})
		})

		When("the path escapes the base directory", func() {
			BeforeEach(func() {
				name = "../outside.png"
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid storage path")))
				Expect(filepath.Join(filepath.Dir(tmpDir), "outside.png")).NotTo(BeAnExistingFile())
			})
		})

		When("the path is absolute", func() {
			BeforeEach(func() {
				name = "/etc/bill.png"
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid storage path")))
			})
		})
	})

	Describe("Get", func() {
		var (
			name string
			data []byte
			err  error
		)

		JustBeforeEach(func() {
			data, err = storage.Get(name)
		})

		When("the file exists", func() {
			BeforeEach(func() {
				name = "alice/bill.png"
				_, saveErr := storage.Save(name, []byte("bill image"))
				Expect(saveErr).NotTo(HaveOccurred())
			})

			It("should return the file data", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("bill image"))
			})
		})

		When("the file does not exist", func() {
			BeforeEach(func() {
				name = "alice/missing.png"
			})

			It("returns ErrNotFound", func() {
				Expect(err).To(MatchError(ErrNotFound))
				Expect(err).To(MatchError(ContainSubstring("reading file")))
			})
		})
	})

	Describe("Delete", func() {
		var (
			name string
			err  error
		)

		JustBeforeEach(func() {
			err = storage.Delete(name)
		})

		When("the file exists", func() {
			BeforeEach(func() {
				name = "alice/bill.png"
				_, saveErr := storage.Save(name, []byte("bill image"))
				Expect(saveErr).NotTo(HaveOccurred())
			})

			It("should remove the file from disk", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(filepath.Join(tmpDir, "alice", "bill.png")).NotTo(BeAnExistingFile())
			})
		})

		When("the file does not exist", func() {
			BeforeEach(func() {
				name = "alice/missing.png"
			})

			It("returns ErrNotFound", func() {
				Expect(err).To(MatchError(ErrNotFound))
				Expect(err).To(MatchError(ContainSubstring("deleting file")))
			})
		})
	})

	Describe("NewLocalStorage", func() {
		It("should create a missing directory", func() {
			path := filepath.Join(GinkgoT().TempDir(), "bills")
			_, err := NewLocalStorage(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeADirectory())
		})
	})
})
