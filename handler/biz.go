package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
)

type bizHandlers struct {
	repo      domain.Repository
	suiteKey  string
	refresher SuiteRefresher
}

func (b *bizHandlers) handleDefault(ctx context.Context, item domain.BizItem) error {
	log.Ctx(ctx).Warn().
		Int("biz_type", int(item.BizType)).
		Str("corp_id", item.CorpID).
		Msg("no handler for biz type")
	return nil
}

// handleSuiteTicket persists the rotated ticket and pushes it into the
// broker's in-memory suite snapshot. The ticket is replaced wholesale.
func (b *bizHandlers) handleSuiteTicket(ctx context.Context, item domain.BizItem) error {
	var payload domain.SuiteTicketPayload
	if err := json.Unmarshal([]byte(item.BizData), &payload); err != nil {
		return fmt.Errorf("decode suite ticket payload: %w", err)
	}

	suite := &domain.Suite{
		CorpID:      item.CorpID,
		SuiteKey:    b.suiteKey,
		SuiteTicket: payload.SuiteTicket,
	}
	if err := b.repo.SaveSuiteTicket(ctx, suite); err != nil {
		return err
	}
	b.refresher.RefreshSuite(item.CorpID, payload.SuiteTicket)

	log.Ctx(ctx).Info().Str("corp_id", item.CorpID).Msg("suite ticket rotated")
	return nil
}

// handleOrgSuiteAuth applies the sync action of a corp authorization item:
// ORG_SUITE_AUTH persists the grant, ORG_SUITE_RELIEVE deletes it.
func (b *bizHandlers) handleOrgSuiteAuth(ctx context.Context, item domain.BizItem) error {
	var payload domain.OrgSuiteAuthPayload
	if err := json.Unmarshal([]byte(item.BizData), &payload); err != nil {
		return fmt.Errorf("decode org suite auth payload: %w", err)
	}

	switch domain.SyncAction(strings.ToUpper(payload.SyncAction)) {
	case domain.SyncOrgSuiteAuth:
		if err := b.repo.SaveOrgSuiteAuth(ctx, item.CorpID, []byte(item.BizData), payload.PermanentCode); err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("corp_id", item.CorpID).Msg("corp authorization saved")
	case domain.SyncOrgSuiteRelieve:
		if err := b.repo.RelieveOrgSuiteAuth(ctx, item.CorpID); err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("corp_id", item.CorpID).Msg("corp authorization relieved")
	default:
		return errors.NewUnknownSyncAction(payload.SyncAction)
	}
	return nil
}
