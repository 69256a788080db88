//go:build system

package system_test

import (
	"context"
	"database/sql"
	"os"
	"strings"

	_ "github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/client"

	"template-docgen/internal/docx"
	"template-docgen/internal/domain"
	appTemporal "template-docgen/internal/temporal"
)

var _ = Describe("System blackbox happy path", Ordered, func() {
	var repoRoot string
	var cfg systemTestConfig

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()

		var err error
		repoRoot, err = findRepoRoot()
		Expect(err).ToNot(HaveOccurred())

		By("verifying required docker compose services (including worker) are already running")
		Expect(requireComposeServicesRunning(repoRoot, cfg.RequiredComposeServices)).To(Succeed())

		By("failing fast if infrastructure is unreachable")
		Expect(waitForPostgres(cfg.PostgresDSN, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForTemporal(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.MinioReadyURL, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIHealthPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIReadyPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForWorkerPoller(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.TemporalTaskQueue, cfg.WorkerPollerTimeout)).To(Succeed())
		Expect(applyMigration(repoRoot, cfg.PostgresDSN)).To(Succeed())
	})

	It("uploads a template, generates from a stored record via a real worker and downloads the document", func() {
		apiBaseURL := strings.TrimRight(cfg.APIBaseURL, "/")

		By("seeding a business record")
		var fields domain.FieldSet
		fields.Set("Tender ID", domain.StringValue(cfg.RecordID))
		fields.Set("Brand Name", domain.StringValue("Acme Industrial Supplies"))
		fields.Set("Closing Date", domain.ParseScalar("2025-03-01", false))
		Expect(seedRecord(cfg.PostgresDSN, domain.Record{ID: cfg.RecordID, Fields: fields})).To(Succeed())

		By("uploading a template exactly like a user")
		templateDoc, err := docx.Bytes([]domain.Paragraph{
			{Text: "TENDER NOTICE", Bold: true},
			{Text: "Brand Name: ____________"},
			{Text: "Closing Date: ____________"},
		})
		Expect(err).ToNot(HaveOccurred())

		upload, err := uploadTemplate(apiBaseURL, "tender_notice.docx", templateDoc)
		Expect(err).ToNot(HaveOccurred())
		Expect(upload.TemplateID).ToNot(BeEmpty())
		Expect(upload.Schema.Fields).ToNot(BeEmpty())
		Expect(upload.Schema.TemplateString).To(ContainSubstring("{"))

		By("waiting for the intake workflow started from the bucket notification")
		Eventually(func() domain.IntakeStatus {
			intake, intakeErr := getIntake(apiBaseURL, upload.TemplateID)
			if intakeErr != nil {
				return ""
			}
			return intake.Status
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Equal(domain.IntakeParsed))

		By("starting an asynchronous generation job")
		job, err := startJob(apiBaseURL, upload.TemplateID, cfg.RecordID)
		Expect(err).ToNot(HaveOccurred())
		Expect(job.WorkflowID).To(HavePrefix("docgen-generate-"))

		By("polling the job until the workflow completes")
		var lastStatus jobStatus
		Eventually(func() appTemporal.GenerationStage {
			var statusErr error
			lastStatus, statusErr = getJob(apiBaseURL, job.WorkflowID)
			Expect(statusErr).ToNot(HaveOccurred())
			if lastStatus.Progress == nil {
				return ""
			}
			Expect(lastStatus.Progress.Stage).ToNot(Equal(appTemporal.StageFailed))
			return lastStatus.Progress.Stage
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Equal(appTemporal.StageCompleted))

		By("downloading the generated document")
		generated, err := downloadJobDocument(apiBaseURL, job.WorkflowID)
		Expect(err).ToNot(HaveOccurred())
		text, err := docx.ExtractText(generated)
		Expect(err).ToNot(HaveOccurred())
		Expect(text).To(ContainSubstring("Acme Industrial Supplies"))
		Expect(text).ToNot(ContainSubstring("{"))

		By("validating activity inputs and outputs from Temporal workflow history")
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		Expect(err).ToNot(HaveOccurred())
		defer temporalClient.Close()

		trace, err := collectActivityTrace(context.Background(), temporalClient, job.WorkflowID)
		Expect(err).ToNot(HaveOccurred())

		Expect(trace.ScheduledOrder).To(Equal(cfg.ExpectedActivityOrder))
		Expect(trace.CompletedOrder).To(Equal(cfg.ExpectedActivityOrder))

		extractIn := trace.Inputs["ExtractSchemaActivity"].(appTemporal.ExtractSchemaInput)
		Expect(extractIn.TemplateID).To(Equal(upload.TemplateID))

		extractOut := trace.Outputs["ExtractSchemaActivity"].(appTemporal.ExtractSchemaOutput)
		Expect(extractOut.Schema).ToNot(BeNil())

		mapIn := trace.Inputs["MapRecordActivity"].(appTemporal.MapRecordInput)
		Expect(mapIn.RecordID).To(Equal(cfg.RecordID))
		Expect(mapIn.Fields).To(Equal(extractOut.Schema.Fields))

		mapOut := trace.Outputs["MapRecordActivity"].(appTemporal.MapRecordOutput)
		Expect(mapOut.Mapped).To(HaveLen(len(extractOut.Schema.Fields)))

		renderOut := trace.Outputs["RenderAndStoreActivity"].(appTemporal.RenderAndStoreOutput)
		Expect(renderOut.OutputKey).To(Equal(lastStatus.Progress.OutputKey))

		By("verifying the intake audit in Postgres")
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		statuses, err := fetchStringRows(db, `SELECT status FROM template_intake WHERE template_id = $1`, upload.TemplateID)
		Expect(err).ToNot(HaveOccurred())
		Expect(statuses).To(Equal([]string{string(domain.IntakeParsed)}))
	})
})
