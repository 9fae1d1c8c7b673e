package handlers_test

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"github.com/DLXSERVEIS/Facturacion/internal/models"
)

// --- Shared mocks for handler tests ---

// MockPartyService implements services.IPartyService
type MockPartyService struct {
	mock.Mock
}

func (m *MockPartyService) Add(ctx context.Context, party *models.Party) error {
	args := m.Called(ctx, party)
	return args.Error(0)
}
func (m *MockPartyService) FindByID(ctx context.Context, id string) (*models.Party, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Party), args.Error(1)
}
func (m *MockPartyService) Update(ctx context.Context, id string, upd models.PartyUpdate) error {
	args := m.Called(ctx, id, upd)
	return args.Error(0)
}
func (m *MockPartyService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockPartyService) List(ctx context.Context) ([]models.Party, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Party), args.Error(1)
}
func (m *MockPartyService) EnsureSeeded(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockInvoiceService implements services.IInvoiceService
type MockInvoiceService struct {
	mock.Mock
}

func (m *MockInvoiceService) Add(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}
func (m *MockInvoiceService) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}
func (m *MockInvoiceService) Update(ctx context.Context, id string, upd models.InvoiceUpdate) error {
	args := m.Called(ctx, id, upd)
	return args.Error(0)
}
func (m *MockInvoiceService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockInvoiceService) MarkPaid(ctx context.Context, id, paymentDate string) error {
	args := m.Called(ctx, id, paymentDate)
	return args.Error(0)
}
func (m *MockInvoiceService) MarkPending(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockInvoiceService) List(ctx context.Context, invoiceType, query string) ([]models.Invoice, error) {
	args := m.Called(ctx, invoiceType, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Invoice), args.Error(1)
}
func (m *MockInvoiceService) AttachFile(ctx context.Context, id string, attachment models.Attachment) (*models.Attachment, error) {
	args := m.Called(ctx, id, attachment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attachment), args.Error(1)
}
func (m *MockInvoiceService) RemoveAttachment(ctx context.Context, id string) (*models.Attachment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attachment), args.Error(1)
}
func (m *MockInvoiceService) FindOverdue(ctx context.Context, today string) ([]models.Invoice, error) {
	args := m.Called(ctx, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Invoice), args.Error(1)
}
func (m *MockInvoiceService) MarkOverdueNotified(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockCompanyService implements services.ICompanyService
type MockCompanyService struct {
	mock.Mock
}

func (m *MockCompanyService) Get(ctx context.Context) (models.CompanyConfig, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.CompanyConfig), args.Error(1)
}
func (m *MockCompanyService) Update(ctx context.Context, upd models.CompanyConfigUpdate) (models.CompanyConfig, error) {
	args := m.Called(ctx, upd)
	return args.Get(0).(models.CompanyConfig), args.Error(1)
}
func (m *MockCompanyService) SetLogo(ctx context.Context, objectKey string) error {
	args := m.Called(ctx, objectKey)
	return args.Error(0)
}
func (m *MockCompanyService) Load(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockCompanyService) SubscribeToChanges(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockS3Storage implements storage.IS3Storage
type MockS3Storage struct {
	mock.Mock
}

func (m *MockS3Storage) GeneratePresignedPutURL(ctx context.Context, prefix, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, prefix, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}
func (m *MockS3Storage) GeneratePresignedGetURL(ctx context.Context, objectKey string) (string, error) {
	args := m.Called(ctx, objectKey)
	return args.String(0), args.Error(1)
}
func (m *MockS3Storage) DeleteObject(ctx context.Context, objectKey string) error {
	args := m.Called(ctx, objectKey)
	return args.Error(0)
}
func (m *MockS3Storage) GetObject(ctx context.Context, objectKey string) ([]byte, string, error) {
	args := m.Called(ctx, objectKey)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}
func (m *MockS3Storage) PutObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	args := m.Called(ctx, objectKey, data, contentType)
	return args.Error(0)
}

// MockAsynqClient implements handlers.IAsynqClient
type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}
