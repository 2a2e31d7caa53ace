package analysis

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/ocr-analytics/internal/classify"
)

var _ = Describe("BoltDB", func() {
	var (
		dbPath string
		db     *BoltDB
	)

	newAnalysis := func(id string) *Analysis {
		return &Analysis{
			ID:          id,
			Filename:    id + "_receipt.png",
			ContentType: "image/png",
			Provider:    "mock",
			Result: classify.Result{
				RawText:    "John Smith",
				Categories: classify.New().Categorize([]string{"John Smith"}),
			},
			CreatedAt: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		}
	}

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveAnalysis", func() {
		It("should round-trip the analysis", func() {
			Expect(db.SaveAnalysis(newAnalysis("a1"))).To(Succeed())

			saved, err := db.GetAnalysis("a1")
			Expect(err).NotTo(HaveOccurred())
			expected := newAnalysis("a1")
			Expect(saved.ID).To(Equal(expected.ID))
			Expect(saved.Filename).To(Equal(expected.Filename))
			Expect(saved.ContentType).To(Equal(expected.ContentType))
			Expect(saved.Provider).To(Equal(expected.Provider))
			Expect(saved.Result).To(Equal(expected.Result))
			Expect(saved.CreatedAt).To(BeTemporally("==", expected.CreatedAt))
		})

		It("should overwrite an analysis with the same id", func() {
			Expect(db.SaveAnalysis(newAnalysis("a1"))).To(Succeed())
			updated := newAnalysis("a1")
			updated.Provider = "azure"
			Expect(db.SaveAnalysis(updated)).To(Succeed())

			saved, err := db.GetAnalysis("a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Provider).To(Equal("azure"))
		})
	})

	Describe("GetAnalysis", func() {
		When("the analysis does not exist", func() {
			It("should return ErrNotFound", func() {
				_, err := db.GetAnalysis("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("ListAnalyses", func() {
		When("the database is empty", func() {
			It("should return an empty list", func() {
				analyses, err := db.ListAnalyses()
				Expect(err).NotTo(HaveOccurred())
				Expect(analyses).NotTo(BeNil())
				Expect(analyses).To(BeEmpty())
			})
		})

		When("analyses exist", func() {
			BeforeEach(func() {
				Expect(db.SaveAnalysis(newAnalysis("a1"))).To(Succeed())
				Expect(db.SaveAnalysis(newAnalysis("a2"))).To(Succeed())
			})

			It("should return all of them", func() {
				analyses, err := db.ListAnalyses()
				Expect(err).NotTo(HaveOccurred())
				Expect(analyses).To(HaveLen(2))
			})
		})
	})

	Describe("DeleteAnalysis", func() {
		BeforeEach(func() {
			Expect(db.SaveAnalysis(newAnalysis("a1"))).To(Succeed())
		})

		It("should remove the analysis", func() {
			Expect(db.DeleteAnalysis("a1")).To(Succeed())
			_, err := db.GetAnalysis("a1")
			Expect(err).To(MatchError(ErrNotFound))
		})

		When("the analysis does not exist", func() {
			It("should return ErrNotFound", func() {
				Expect(db.DeleteAnalysis("missing")).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("reopening", func() {
		It("should keep saved analyses", func() {
			Expect(db.SaveAnalysis(newAnalysis("a1"))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())
			_, err = db.GetAnalysis("a1")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
