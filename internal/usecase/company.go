package usecase

import (
	"fmt"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

const maxCompanyPageSize = 100

// CompanyService derives companies from evaluations and lists them.
type CompanyService struct {
	Companies domain.CompanyRepository
}

// NewCompanyService constructs a CompanyService.
func NewCompanyService(r domain.CompanyRepository) CompanyService {
	return CompanyService{Companies: r}
}

// CompanyFrom builds the company row an evaluation of sub produces.
func CompanyFrom(sub domain.Submission, e domain.Evaluation) domain.Company {
	return domain.Company{
		SubmissionID:   sub.ID,
		Name:           sub.CompanyName,
		NormalizedName: domain.NormalizeCompanyName(sub.CompanyName),
		Source:         sub.Source,
		UserID:         sub.UserID,
		Score:          e.Aggregate,
		MaxScore:       e.MaxScore,
		ScorePercent:   e.Percent(),
		ContactName:    sub.ContactName,
		ContactEmail:   sub.ContactEmail,
		Website:        sub.Website,
		Summary:        e.Summary,
	}
}

// Merge upserts the company derived from sub and e in a single statement.
func (s CompanyService) Merge(ctx domain.Context, sub domain.Submission, e domain.Evaluation) (domain.Company, bool, error) {
	c := CompanyFrom(sub, e)
	if c.NormalizedName == "" {
		return domain.Company{}, false, fmt.Errorf("%w: company name required", domain.ErrInvalidArgument)
	}
	out, inserted, err := s.Companies.Upsert(ctx, c)
	if err != nil {
		return domain.Company{}, false, fmt.Errorf("op=company.merge: %w", err)
	}
	observability.RecordCompanyUpsert(inserted)
	return out, inserted, nil
}

// ListInput is a page request for companies. Page is 1-based.
type ListInput struct {
	Source   string
	UserID   string
	MinScore int
	Page     int
	Limit    int
}

// List returns one page of companies, best score first.
func (s CompanyService) List(ctx domain.Context, in ListInput) ([]domain.Company, ListInput, error) {
	if in.MinScore < 0 || in.MinScore > 100 {
		return nil, in, fmt.Errorf("%w: min_score must be within 0-100", domain.ErrInvalidArgument)
	}
	if in.Page <= 0 {
		in.Page = 1
	}
	if in.Limit <= 0 {
		in.Limit = 20
	}
	if in.Limit > maxCompanyPageSize {
		in.Limit = maxCompanyPageSize
	}
	out, err := s.Companies.List(ctx, domain.CompanyFilter{
		Source:     in.Source,
		UserID:     in.UserID,
		MinPercent: in.MinScore,
		Offset:     (in.Page - 1) * in.Limit,
		Limit:      in.Limit,
	})
	if err != nil {
		return nil, in, fmt.Errorf("op=company.list: %w", err)
	}
	return out, in, nil
}
