package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/medvextract/medvextract-api/internal/cache"
	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/extraction"
	"github.com/medvextract/medvextract-api/internal/fingerprint"
	"github.com/medvextract/medvextract-api/internal/platform/logger"
	"github.com/medvextract/medvextract-api/internal/platform/telemetry"
	"github.com/medvextract/medvextract-api/internal/redact"
	"github.com/medvextract/medvextract-api/internal/resilience"
	"github.com/medvextract/medvextract-api/internal/sanitize"
	"github.com/medvextract/medvextract-api/internal/store"
	"github.com/medvextract/medvextract-api/internal/task"
)

// Call-site names of the orchestrator's resilience policies.
const (
	PolicyExtraction = "extraction"
	PolicyJobRead    = "jobstore.read"
	PolicyJobList    = "jobstore.list"
)

// TaskSubmitter accepts tasks for background execution.
type TaskSubmitter interface {
	Submit(t task.Task) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store         store.JobStore
	Cache         *cache.ResultCache
	Extractor     extraction.Extractor
	Fingerprinter *fingerprint.Generator
	Policies      *resilience.Registry

	// Runner is required by Submit. Run works without it.
	Runner TaskSubmitter

	// Schema validates sanitized output when set.
	Schema *extraction.SchemaValidator

	Sanitizer sanitize.Sanitizer
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
	Tracer    *telemetry.Tracer
}

// Orchestrator implements the submission workflow.
type Orchestrator struct {
	store         store.JobStore
	cache         *cache.ResultCache
	extractor     extraction.Extractor
	fingerprinter *fingerprint.Generator
	runner        TaskSubmitter
	schema        *extraction.SchemaValidator
	sanitizer     sanitize.Sanitizer

	extractPolicy *resilience.Policy
	readPolicy    *resilience.Policy
	listPolicy    *resilience.Policy

	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// NewOrchestrator validates deps and creates an Orchestrator.
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("job store is required")
	}
	if deps.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if deps.Policies == nil {
		return nil, errors.New("resilience registry is required")
	}
	if deps.Fingerprinter == nil {
		fp, err := fingerprint.New(fingerprint.AlgorithmBlake2b)
		if err != nil {
			return nil, err
		}
		deps.Fingerprinter = fp
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewResultCache(cache.NopBackend{}, cache.Config{}, deps.Logger, deps.Metrics)
	}

	return &Orchestrator{
		store:         deps.Store,
		cache:         deps.Cache,
		extractor:     deps.Extractor,
		fingerprinter: deps.Fingerprinter,
		runner:        deps.Runner,
		schema:        deps.Schema,
		sanitizer:     deps.Sanitizer,
		extractPolicy: deps.Policies.Policy(PolicyExtraction, extraction.Classify),
		readPolicy:    deps.Policies.Policy(PolicyJobRead, classifyStoreError),
		listPolicy:    deps.Policies.Policy(PolicyJobList, classifyStoreError),
		logger:        deps.Logger.With("component", "pipeline"),
		metrics:       deps.Metrics,
		tracer:        deps.Tracer,
	}, nil
}

// classifyStoreError keeps lookups of missing or invalid rows from being
// retried or counted against the store's breaker.
func classifyStoreError(err error) resilience.Class {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidEntity) {
		return resilience.ClassPermanent
	}
	return resilience.DefaultClassifier(err)
}

// Submit validates req and either answers from the cache or creates a
// PENDING job and enqueues it. It never waits for extraction.
func (o *Orchestrator) Submit(ctx context.Context, req domain.WorkRequest) (sub *Submission, err error) {
	ctx, span := o.tracer.StartSpan(ctx, "pipeline.submit")
	defer func() { telemetry.EndSpan(span, err) }()

	if o.runner == nil {
		return nil, ErrNoRunner
	}

	fp, hit, err := o.lookup(ctx, req)
	if err != nil || hit != nil {
		return hit, err
	}

	job, err := o.createJob(ctx, req, fp)
	if err != nil {
		return nil, err
	}

	if err := o.runner.Submit(NewExtractionTask(o, job)); err != nil {
		log := o.jobLogger(job)
		log.Warn("job could not be enqueued", "error", err)

		failCtx := context.WithoutCancel(ctx)
		if ferr := o.store.FailJob(failCtx, job.ID, MessageQueueFull); ferr != nil {
			log.Error("failed to record queue rejection", "error", redact.Error(ferr))
		} else {
			o.metrics.RecordJobFinished(failCtx, string(domain.JobStatusFailed))
		}
		return nil, fmt.Errorf("%w: %w", ErrQueueFull, err)
	}

	o.jobLogger(job).Info("job accepted")
	return &Submission{JobID: job.ID, Fingerprint: fp, Status: domain.JobStatusPending}, nil
}

// Run is the synchronous form of Submit: on a cache miss the job is
// processed before Run returns.
func (o *Orchestrator) Run(ctx context.Context, req domain.WorkRequest) (sub *Submission, err error) {
	ctx, span := o.tracer.StartSpan(ctx, "pipeline.run")
	defer func() { telemetry.EndSpan(span, err) }()

	fp, hit, err := o.lookup(ctx, req)
	if err != nil || hit != nil {
		return hit, err
	}

	job, err := o.createJob(ctx, req, fp)
	if err != nil {
		return nil, err
	}

	finished, err := o.process(ctx, job)
	if err != nil {
		return nil, err
	}
	return submissionFromJob(finished), nil
}

// lookup validates and fingerprints req and consults the cache. A non-nil
// Submission is a cache hit.
func (o *Orchestrator) lookup(ctx context.Context, req domain.WorkRequest) (domain.Fingerprint, *Submission, error) {
	if err := req.Validate(); err != nil {
		return "", nil, err
	}

	timing := telemetry.StartTiming(ctx, "fingerprint", "request fingerprint")
	fp := o.fingerprinter.Fingerprint(req)
	timing.Stop()

	timing = telemetry.StartTiming(ctx, "cache", "result cache lookup")
	result, ok := o.cache.Get(ctx, fp)
	timing.Stop()

	if !ok {
		o.metrics.RecordSubmission(ctx, false)
		return fp, nil, nil
	}

	id := uuid.New()
	o.cache.PutReceipt(ctx, id, fp)
	o.metrics.RecordSubmission(ctx, true)
	o.logger.InfoContext(ctx, "cache hit, returning cached result",
		"job_id", id,
		"fingerprint", fp.Short())

	return fp, &Submission{
		JobID:       id,
		Fingerprint: fp,
		Status:      domain.JobStatusCompleted,
		Cached:      true,
		Result:      result,
	}, nil
}

func (o *Orchestrator) createJob(ctx context.Context, req domain.WorkRequest, fp domain.Fingerprint) (*domain.Job, error) {
	job, err := domain.NewJob(req, fp)
	if err != nil {
		return nil, err
	}

	timing := telemetry.StartTiming(ctx, "store", "job creation")
	err = o.store.CreateJob(ctx, job)
	timing.Stop()
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to create job",
			"fingerprint", fp.Short(),
			"error", redact.ErrorWithout(err, req.Transcript, req.Notes))
		return nil, fmt.Errorf("%w: creating job: %w", ErrStoreUnavailable, err)
	}
	return job, nil
}

// Process runs the extraction for a PENDING job and records its terminal
// state. Extraction failures are recorded on the job and are not returned;
// the only error is ErrTerminalWrite.
func (o *Orchestrator) Process(ctx context.Context, job *domain.Job) error {
	_, err := o.process(ctx, job)
	return err
}

func (o *Orchestrator) process(ctx context.Context, job *domain.Job) (finished *domain.Job, err error) {
	// Caller cancellation is not propagated into an in-flight extraction.
	ctx = context.WithoutCancel(ctx)
	ctx, span := o.tracer.StartSpan(ctx, "pipeline.process",
		telemetry.JobAttr(job.ID.String()),
		telemetry.FingerprintAttr(job.Fingerprint.Short()))
	defer func() { telemetry.EndSpan(span, err) }()

	log := o.jobLogger(job)
	ctx = logger.WithLogger(ctx, log)
	done := *job

	raw, result, extractErr := o.extract(ctx, job)
	if extractErr != nil {
		msg := FailureMessage(extractErr)
		log.Warn("extraction failed",
			"reason", msg,
			"error", redact.ErrorWithout(extractErr, job.Request.Transcript, job.Request.Notes))

		if err := o.store.FailJob(ctx, job.ID, msg); err != nil {
			return o.terminalWriteFailed(ctx, log, job, err)
		}
		if err := done.Fail(msg); err != nil {
			return nil, err
		}
		o.metrics.RecordJobFinished(ctx, string(domain.JobStatusFailed))
		return &done, nil
	}

	if err := o.store.CompleteJob(ctx, job.ID, raw, result); err != nil {
		return o.terminalWriteFailed(ctx, log, job, err)
	}
	if err := done.Complete(raw, result); err != nil {
		return nil, err
	}
	o.cache.Put(ctx, job.Fingerprint, result)
	o.metrics.RecordJobFinished(ctx, string(domain.JobStatusCompleted))
	log.Info("job completed", "result_bytes", len(result))
	return &done, nil
}

// extract calls the extractor through the extraction policy and returns the
// raw and sanitized results as JSON.
func (o *Orchestrator) extract(ctx context.Context, job *domain.Job) (raw, result json.RawMessage, err error) {
	ctx, span := o.tracer.StartSpan(ctx, "pipeline.extract", telemetry.JobAttr(job.ID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	output, err := resilience.Execute(ctx, o.extractPolicy, func(ctx context.Context) (any, error) {
		return o.extractor.Extract(ctx, job.Request)
	})
	if err != nil {
		return nil, nil, err
	}

	value := o.sanitizer.Sanitize(output)
	result, err = json.Marshal(value)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encoding sanitized output: %v", extraction.ErrInvalidResponse, err)
	}

	if o.schema != nil {
		if err := o.schema.Validate(result); err != nil {
			return nil, nil, err
		}
	}

	return rawJSON(ctx, output, result), result, nil
}

// rawJSON encodes the extractor's output as stored. Output that cannot be
// encoded as JSON is stored in its sanitized form.
func rawJSON(ctx context.Context, output any, sanitized json.RawMessage) json.RawMessage {
	if msg, ok := output.(json.RawMessage); ok && json.Valid(msg) {
		return msg
	}
	data, err := json.Marshal(output)
	if err != nil {
		logger.FromContext(ctx).Warn("raw extraction output is not JSON-encodable, storing sanitized form",
			"error_type", fmt.Sprintf("%T", err))
		return sanitized
	}
	return data
}

// terminalWriteFailed classifies a failed terminal write. A job another
// worker already finished is not an error; its stored state is returned.
func (o *Orchestrator) terminalWriteFailed(ctx context.Context, log *slog.Logger, job *domain.Job, err error) (*domain.Job, error) {
	if errors.Is(err, store.ErrJobNotPending) {
		log.Info("job already finished by another worker")
		current, getErr := o.store.GetJob(ctx, job.ID)
		if getErr != nil {
			return nil, fmt.Errorf("%w: job %s: %w", ErrTerminalWrite, job.ID, getErr)
		}
		return current, nil
	}
	log.Error("failed to record job outcome", "error", redact.Error(err))
	return nil, fmt.Errorf("%w: job %s: %w", ErrTerminalWrite, job.ID, err)
}

// Status reports the state of a job. IDs issued for cache hits resolve
// through their receipt while it lives.
func (o *Orchestrator) Status(ctx context.Context, id uuid.UUID) (*StatusReport, error) {
	job, err := resilience.Execute(ctx, o.readPolicy, func(ctx context.Context) (*domain.Job, error) {
		return o.store.GetJob(ctx, id)
	})
	if err == nil {
		return reportFromJob(job), nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		o.logger.WarnContext(ctx, "job status lookup failed",
			"job_id", id,
			"circuit_open", errors.Is(err, resilience.ErrCircuitOpen),
			"error", redact.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if fp, ok := o.cache.Receipt(ctx, id); ok {
		if result, ok := o.cache.Get(ctx, fp); ok {
			return &StatusReport{
				JobID:  id,
				Status: domain.JobStatusCompleted,
				Result: result,
				Cached: true,
			}, nil
		}
	}
	return nil, ErrJobNotFound
}

// List returns jobs matching filter. Failures yield an empty list.
func (o *Orchestrator) List(ctx context.Context, filter store.JobFilter) []*domain.Job {
	return resilience.ExecuteWithFallback(ctx, o.listPolicy, func(ctx context.Context) ([]*domain.Job, error) {
		return o.store.ListJobs(ctx, filter)
	}, []*domain.Job{})
}

// RecoverPending rebuilds extraction tasks for jobs left PENDING by a
// previous process. It is the task runner's recover hook.
func (o *Orchestrator) RecoverPending(ctx context.Context) ([]task.Task, error) {
	jobs, err := o.store.ListPendingJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing pending jobs: %w", ErrStoreUnavailable, err)
	}

	tasks := make([]task.Task, 0, len(jobs))
	for _, job := range jobs {
		tasks = append(tasks, NewExtractionTask(o, job))
	}
	if len(tasks) > 0 {
		o.logger.InfoContext(ctx, "recovered pending jobs", "count", len(tasks))
	}
	return tasks, nil
}

// Breakers returns the state of every resilience policy.
func (o *Orchestrator) Breakers() map[string]string {
	return map[string]string{
		o.extractPolicy.Name(): o.extractPolicy.State(),
		o.readPolicy.Name():    o.readPolicy.State(),
		o.listPolicy.Name():    o.listPolicy.State(),
	}
}

func (o *Orchestrator) jobLogger(job *domain.Job) *slog.Logger {
	return o.logger.With(
		"job_id", job.ID,
		"fingerprint", job.Fingerprint.Short())
}
