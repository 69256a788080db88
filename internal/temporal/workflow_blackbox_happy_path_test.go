package temporal

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"template-docgen/internal/docx"
	"template-docgen/internal/domain"
	"template-docgen/internal/extraction"
	"template-docgen/internal/render"
)

type activityTrace struct {
	mu sync.Mutex

	startedOrder   []string
	completedOrder []string

	extractIn  *ExtractSchemaInput
	extractOut *ExtractSchemaOutput
	mapIn      *MapRecordInput
	mapOut     *MapRecordOutput
	renderIn   *RenderAndStoreInput
	renderOut  *RenderAndStoreOutput
}

func (t *activityTrace) recordStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedOrder = append(t.startedOrder, name)
}

func (t *activityTrace) recordCompleted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedOrder = append(t.completedOrder, name)
}

var _ = Describe("GenerateFromRecordWorkflow blackbox happy path", func() {
	It("extracts the template schema, maps the stored record and uploads the filled document", func() {
		var suite testsuite.WorkflowTestSuite
		env := suite.NewTestWorkflowEnvironment()

		templateDoc, err := docx.Bytes([]domain.Paragraph{
			{Text: "TENDER NOTICE", Bold: true},
			{Text: "Brand: ________"},
			{Text: "Closes on ________"},
		})
		Expect(err).ToNot(HaveOccurred())

		var fields domain.FieldSet
		fields.Set("Brand Name", domain.StringValue("Acme"))
		fields.Set("Closing Date", domain.ParseScalar("2025-03-01", false))
		fields.Set("Tender Value", domain.NumberValue(125000))

		store := newFakeStore()
		store.templates["tpl-happy"] = templateDoc
		store.records["T-100"] = domain.Record{ID: "T-100", Fields: fields}

		model := &stubLLM{responses: []string{tenderSchemaJSON}}
		acts := &Activities{
			Templates: store,
			Outputs:   store,
			Records:   store,
			Intake:    store,
			Extractor: extraction.New(model, nil),
			Generator: render.New(domain.PolicyStrip, nil),
			OutputDir: GinkgoT().TempDir(),
		}

		trace := &activityTrace{}

		env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
			trace.recordStarted(info.ActivityType.Name)

			switch info.ActivityType.Name {
			case "ExtractSchemaActivity":
				var in ExtractSchemaInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.extractIn = &in
				trace.mu.Unlock()
			case "MapRecordActivity":
				var in MapRecordInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.mapIn = &in
				trace.mu.Unlock()
			case "RenderAndStoreActivity":
				var in RenderAndStoreInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.renderIn = &in
				trace.mu.Unlock()
			}
		})

		env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, _ error) {
			trace.recordCompleted(info.ActivityType.Name)

			switch info.ActivityType.Name {
			case "ExtractSchemaActivity":
				var out ExtractSchemaOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.extractOut = &out
				trace.mu.Unlock()
			case "MapRecordActivity":
				var out MapRecordOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.mapOut = &out
				trace.mu.Unlock()
			case "RenderAndStoreActivity":
				var out RenderAndStoreOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.renderOut = &out
				trace.mu.Unlock()
			}
		})

		registerAll(env, acts)

		By("triggering the workflow execution")
		env.ExecuteWorkflow(GenerateFromRecordWorkflow, GenerateInput{
			TemplateID: "tpl-happy",
			RecordID:   "T-100",
			Threshold:  0.5,
		})

		By("validating workflow completes successfully")
		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var result GenerateResult
		Expect(env.GetWorkflowResult(&result)).To(Succeed())
		Expect(result.SchemaName).To(Equal("Tender Notice"))
		Expect(result.OutputKey).To(HavePrefix("outputs/"))
		Expect(result.Unreplaced).To(BeEmpty())

		By("validating activity order and payloads")
		Expect(trace.startedOrder).To(Equal([]string{
			"ExtractSchemaActivity",
			"MapRecordActivity",
			"RenderAndStoreActivity",
		}))
		Expect(trace.completedOrder).To(Equal(trace.startedOrder))

		Expect(trace.extractIn).ToNot(BeNil())
		Expect(trace.extractIn.TemplateID).To(Equal("tpl-happy"))
		Expect(trace.extractOut).ToNot(BeNil())
		Expect(trace.extractOut.Schema).ToNot(BeNil())
		Expect(trace.extractOut.Schema.FieldIDs()).To(Equal([]string{"brand", "closing"}))

		Expect(trace.mapIn).ToNot(BeNil())
		Expect(trace.mapIn.RecordID).To(Equal("T-100"))
		Expect(trace.mapIn.Threshold).To(BeNumerically("~", 0.5, 0.0001))
		Expect(trace.mapOut).ToNot(BeNil())
		Expect(trace.mapOut.Mapped).To(Equal(domain.MappedData{
			{ID: "brand", Value: "Acme"},
			{ID: "closing", Value: "2025-03-01"},
		}))

		Expect(trace.renderIn).ToNot(BeNil())
		Expect(trace.renderIn.TemplateString).To(Equal("TENDER NOTICE\nBrand: {brand}\nCloses on {closing}"))
		Expect(trace.renderOut).ToNot(BeNil())
		Expect(trace.renderOut.OutputKey).To(Equal(result.OutputKey))

		By("validating the uploaded document and progress query")
		store.mu.Lock()
		uploaded := store.outputs[result.OutputKey]
		store.mu.Unlock()
		paras, err := docx.Paragraphs(uploaded)
		Expect(err).ToNot(HaveOccurred())
		Expect(paras).To(Equal([]domain.Paragraph{
			{Text: "TENDER NOTICE", Bold: true},
			{Text: "Brand: Acme"},
			{Text: "Closes on 2025-03-01"},
		}))

		value, err := env.QueryWorkflow(ProgressQueryName)
		Expect(err).ToNot(HaveOccurred())
		var progress GenerationProgress
		Expect(value.Get(&progress)).To(Succeed())
		Expect(progress.Stage).To(Equal(StageCompleted))
		Expect(progress.OutputKey).To(Equal(result.OutputKey))
		Expect(model.prompts).To(HaveLen(1))
	})
})
