package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/pkg/logger"
)

// SeedType 预置类型及其主题
type SeedType struct {
	Name        string
	Description string
	Color       string
	Icon        string
	Topics      []SeedTopic
}

// SeedTopic 预置主题
type SeedTopic struct {
	Name        string
	Description string
}

// SeedResult 本次新写入的数量
type SeedResult struct {
	TypesCreated  int `json:"types_created"`
	TopicsCreated int `json:"topics_created"`
}

// DefaultTaxonomy 新部署的默认类型与主题
var DefaultTaxonomy = []SeedType{
	{
		Name:        "Datenschutz",
		Description: "Richtlinien und Verfahren zum Schutz personenbezogener Daten",
		Color:       "#28A745",
		Icon:        "shield-check",
		Topics: []SeedTopic{
			{Name: "Datenschutzrichtlinie", Description: "Allgemeine Datenschutzbestimmungen"},
			{Name: "Auftragsverarbeitung", Description: "Verträge zur Auftragsverarbeitung"},
			{Name: "Betroffenenrechte", Description: "Rechte der betroffenen Personen"},
		},
	},
	{
		Name:        "IT-Sicherheitsrichtlinien",
		Description: "Sicherheitsrichtlinien für IT-Systeme und -Verfahren",
		Color:       "#DC3545",
		Icon:        "security",
		Topics: []SeedTopic{
			{Name: "Laptop-Sicherheit", Description: "Sicherheitsrichtlinien für Laptops"},
			{Name: "Mobiltelefon-Sicherheit", Description: "Sicherheitsrichtlinien für mobile Geräte"},
			{Name: "Benutzeraccount-Verwaltung", Description: "Richtlinien für Benutzerkonten"},
		},
	},
	{
		Name:        "Dienstvereinbarungen",
		Description: "Vereinbarungen bezüglich Arbeitsbedingungen und -verfahren",
		Color:       "#007BFF",
		Icon:        "handshake",
		Topics: []SeedTopic{
			{Name: "Arbeitszeiten", Description: "Regelungen zu Arbeitszeiten"},
			{Name: "Homeoffice", Description: "Regelungen für Heimarbeit"},
			{Name: "Urlaubsregelung", Description: "Urlaubsbestimmungen"},
		},
	},
}

// Seed 写入缺失的类型与主题，已存在的按名称跳过，可重复执行
func (s *TaxonomyService) Seed(ctx context.Context, types []SeedType) (*SeedResult, error) {
	result := &SeedResult{}
	err := s.taxonomyRepo.Transaction(ctx, func(ctx context.Context) error {
		existing, err := s.taxonomyRepo.ListTypes(ctx)
		if err != nil {
			return err
		}
		byName := make(map[string]*model.RulesetType, len(existing))
		for _, t := range existing {
			byName[t.Name] = t
		}

		for _, st := range types {
			t, ok := byName[st.Name]
			if !ok {
				t = &model.RulesetType{
					Name:        st.Name,
					Description: st.Description,
					Color:       st.Color,
					Icon:        st.Icon,
				}
				if err := s.taxonomyRepo.CreateType(ctx, t); err != nil {
					return err
				}
				byName[t.Name] = t
				result.TypesCreated++
			}

			for _, topic := range st.Topics {
				taken, err := s.taxonomyRepo.TopicNameTaken(ctx, t.ID, topic.Name, 0)
				if err != nil {
					return err
				}
				if taken {
					continue
				}
				if err := s.taxonomyRepo.CreateTopic(ctx, &model.Topic{
					Name:        topic.Name,
					Description: topic.Description,
					TypeID:      t.ID,
				}); err != nil {
					return err
				}
				result.TopicsCreated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("taxonomy seeded",
		zap.Int("types_created", result.TypesCreated),
		zap.Int("topics_created", result.TopicsCreated))
	return result, nil
}
