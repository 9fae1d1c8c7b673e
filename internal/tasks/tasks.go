package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // registered for logo decoding
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"

	"github.com/DLXSERVEIS/Facturacion/internal/config"
	"github.com/DLXSERVEIS/Facturacion/internal/email"
	"github.com/DLXSERVEIS/Facturacion/internal/models"
	"github.com/DLXSERVEIS/Facturacion/internal/services"
	"github.com/DLXSERVEIS/Facturacion/internal/storage"
)

// Task types.
const (
	TypeEmailDelivery     = "email:deliver"
	TypeAttachmentCleanup = "attachment:cleanup"
	TypeLogoProcess       = "logo:process"
	TypeOverdueRemind     = "invoice:overdue:remind"
)

// Enqueuer is the slice of the asynq client the processor needs to fan out
// follow-up tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// --- Payloads ---

type EmailTaskPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type AttachmentCleanupPayload struct {
	ObjectKey string `json:"object_key"`
}

type LogoTaskPayload struct {
	ObjectKey string `json:"object_key"`
}

// NewEmailDeliveryTask builds an email delivery task.
func NewEmailDeliveryTask(to, subject, body string) (*asynq.Task, error) {
	payload, err := json.Marshal(EmailTaskPayload{To: to, Subject: subject, Body: body})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEmailDelivery, payload), nil
}

// NewAttachmentCleanupTask builds a blob cleanup task for an orphaned S3 key.
func NewAttachmentCleanupTask(objectKey string) (*asynq.Task, error) {
	payload, err := json.Marshal(AttachmentCleanupPayload{ObjectKey: objectKey})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAttachmentCleanup, payload, asynq.Queue("low")), nil
}

// NewLogoProcessTask builds a logo normalization task.
func NewLogoProcessTask(objectKey string) (*asynq.Task, error) {
	payload, err := json.Marshal(LogoTaskPayload{ObjectKey: objectKey})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLogoProcess, payload), nil
}

// NewOverdueRemindTask builds the periodic overdue reminder scan task.
func NewOverdueRemindTask() *asynq.Task {
	return asynq.NewTask(TypeOverdueRemind, nil)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks. It holds the dependencies
// needed by task handlers.
type TaskProcessor struct {
	cfg            *config.Config
	emailSender    email.Sender
	storageService storage.IS3Storage
	invoiceService services.IInvoiceService
	companyService services.ICompanyService
	taskClient     Enqueuer
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	storageService storage.IS3Storage,
	invoiceService services.IInvoiceService,
	companyService services.ICompanyService,
	taskClient Enqueuer,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:            cfg,
		emailSender:    emailSender,
		storageService: storageService,
		invoiceService: invoiceService,
		companyService: companyService,
		taskClient:     taskClient,
	}
}

// SetupServer configures an Asynq server and the mux with every task handler
// registered. The caller runs the server.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypeAttachmentCleanup, processor.HandleAttachmentCleanupTask)
	mux.HandleFunc(TypeLogoProcess, processor.HandleLogoProcessTask)
	mux.HandleFunc(TypeOverdueRemind, processor.HandleOverdueRemindTask)

	return srv, mux
}

// --- Task Handlers ---

// HandleEmailDeliveryTask sends one notification email.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("email task without recipient: %w", asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", payload.To))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", payload.Subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(payload.Body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{payload.To}, payload.Subject, []byte(sb.String())); err != nil {
		return err
	}

	log.Printf("Email task processed: To=%s, Subject=%s", payload.To, payload.Subject)
	return nil
}

// HandleAttachmentCleanupTask deletes an orphaned attachment blob.
func (p *TaskProcessor) HandleAttachmentCleanupTask(ctx context.Context, t *asynq.Task) error {
	var payload AttachmentCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal cleanup task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ObjectKey == "" {
		return fmt.Errorf("cleanup task without object key: %w", asynq.SkipRetry)
	}

	if err := p.storageService.DeleteObject(ctx, payload.ObjectKey); err != nil {
		return fmt.Errorf("failed to delete attachment blob %s: %w", payload.ObjectKey, err)
	}
	log.Printf("Deleted orphaned attachment blob: %s", payload.ObjectKey)
	return nil
}

// HandleLogoProcessTask normalizes an uploaded company logo: anything larger
// than the configured dimension is downscaled and re-encoded as JPEG in
// place.
func (p *TaskProcessor) HandleLogoProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload LogoTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal logo task payload: %v: %w", err, asynq.SkipRetry)
	}

	data, _, err := p.storageService.GetObject(ctx, payload.ObjectKey)
	if err != nil {
		return fmt.Errorf("failed to download logo %s: %w", payload.ObjectKey, err)
	}

	maxSizeBytes := int64(p.cfg.AttachmentMaxSizeMB) * 1024 * 1024
	if int64(len(data)) > maxSizeBytes {
		return fmt.Errorf("logo %s exceeds max size (%d bytes): %w", payload.ObjectKey, len(data), asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("unsupported or corrupt logo image %s: %w", payload.ObjectKey, asynq.SkipRetry)
	}

	maxDim := p.cfg.LogoMaxDimension
	if maxDim <= 0 || (img.Bounds().Dx() <= maxDim && img.Bounds().Dy() <= maxDim) {
		log.Printf("Logo %s (%s, %dx%d) within limits, no processing needed", payload.ObjectKey, format, img.Bounds().Dx(), img.Bounds().Dy())
		return nil
	}

	resized := resize.Thumbnail(uint(maxDim), uint(maxDim), img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("failed to re-encode resized logo %s: %w", payload.ObjectKey, err)
	}

	if err := p.storageService.PutObject(ctx, payload.ObjectKey, buf.Bytes(), "image/jpeg"); err != nil {
		return fmt.Errorf("failed to upload processed logo %s: %w", payload.ObjectKey, err)
	}
	log.Printf("Normalized logo %s to %dx%d", payload.ObjectKey, resized.Bounds().Dx(), resized.Bounds().Dy())
	return nil
}

// HandleOverdueRemindTask scans for pending invoices past due and fans out
// one reminder email per invoice. The stored estado is never touched:
// vencida stays a display-derived state.
func (p *TaskProcessor) HandleOverdueRemindTask(ctx context.Context, t *asynq.Task) error {
	today := time.Now().UTC().Format("2006-01-02")
	overdue, err := p.invoiceService.FindOverdue(ctx, today)
	if err != nil {
		return fmt.Errorf("overdue scan failed: %w", err)
	}
	if len(overdue) == 0 {
		return nil
	}

	company, err := p.companyService.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load company config for reminders: %w", err)
	}

	for i := range overdue {
		inv := &overdue[i]

		// Sales reminders go to the counterparty; purchase reminders go to
		// the company itself (it is the one that owes the money).
		to := inv.Counterparty.Email
		subject := fmt.Sprintf("Recordatorio de pago: factura %s", inv.Number)
		body := fmt.Sprintf(
			"La factura %s emitida el %s vencio el %s.\nImporte pendiente: %.2f EUR.\n\n%s",
			inv.Number, inv.IssueDate, inv.DueDate, inv.Total, company.Name,
		)
		if inv.Type == models.InvoicePurchase {
			to = company.Email
			subject = fmt.Sprintf("Factura de compra vencida: %s (%s)", inv.Number, inv.Counterparty.Name)
		}
		if to == "" {
			log.Printf("Overdue invoice %s has no reminder recipient, skipping", inv.ID)
			continue
		}

		task, err := NewEmailDeliveryTask(to, subject, body)
		if err != nil {
			return fmt.Errorf("failed to build reminder email for invoice %s: %w", inv.ID, err)
		}
		if _, err := p.taskClient.EnqueueContext(ctx, task); err != nil {
			return fmt.Errorf("failed to enqueue reminder email for invoice %s: %w", inv.ID, err)
		}
		if err := p.invoiceService.MarkOverdueNotified(ctx, inv.ID); err != nil {
			log.Printf("Warning: failed to flag invoice %s as reminded: %v", inv.ID, err)
		}
	}

	log.Printf("Overdue scan queued %d reminder(s)", len(overdue))
	return nil
}
