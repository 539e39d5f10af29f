package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/lib/pq"
)

const profileColumns = `p.id, p.user_id, p.bio, p.message_price, p.is_verified, p.is_active,
	p.categories, p.social_links, p.created_at, p.updated_at`

func profileDest(p *models.InfluencerProfile, categories, links *pq.StringArray) []interface{} {
	return []interface{}{&p.ID, &p.UserID, &p.Bio, &p.MessagePrice, &p.IsVerified, &p.IsActive,
		categories, links, &p.CreatedAt, &p.UpdatedAt}
}

func scanProfile(row rowScanner) (*models.InfluencerProfile, error) {
	var p models.InfluencerProfile
	var categories, links pq.StringArray
	if err := row.Scan(profileDest(&p, &categories, &links)...); err != nil {
		return nil, err
	}
	p.Categories = []string(categories)
	p.SocialLinks = []string(links)
	return &p, nil
}

// InsertInfluencerProfileIfAbsent relies on UNIQUE(user_id); a second profile is never created.
func (q *Queries) InsertInfluencerProfileIfAbsent(ctx context.Context, p *models.InfluencerProfile) (bool, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO influencer_profiles (user_id, bio, message_price, is_verified, is_active, categories, social_links)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`, p.UserID, p.Bio, p.MessagePrice, p.IsVerified, p.IsActive,
		pq.StringArray(nonNil(p.Categories)), pq.StringArray(nonNil(p.SocialLinks)),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// conflict: RETURNING yields nothing
		return false, nil
	}
	if err != nil {
		return false, mapErr(err)
	}
	return true, nil
}

func (q *Queries) GetInfluencerProfile(ctx context.Context, id int64) (*models.InfluencerProfile, error) {
	p, err := scanProfile(q.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM influencer_profiles p WHERE p.id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (q *Queries) GetInfluencerProfileByUser(ctx context.Context, userID string) (*models.InfluencerProfile, error) {
	p, err := scanProfile(q.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM influencer_profiles p WHERE p.user_id = $1`, userID))
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (q *Queries) UpdateInfluencerProfile(ctx context.Context, p *models.InfluencerProfile) error {
	return requireRow(q.db.ExecContext(ctx, `
		UPDATE influencer_profiles
		SET bio = $2, message_price = $3, is_active = $4, categories = $5, social_links = $6, updated_at = NOW()
		WHERE user_id = $1
	`, p.UserID, p.Bio, p.MessagePrice, p.IsActive,
		pq.StringArray(nonNil(p.Categories)), pq.StringArray(nonNil(p.SocialLinks))))
}

func (q *Queries) SetInfluencerVerified(ctx context.Context, id int64, verified bool) error {
	return requireRow(q.db.ExecContext(ctx, `
		UPDATE influencer_profiles SET is_verified = $2, updated_at = NOW() WHERE id = $1
	`, id, verified))
}

func (q *Queries) SetInfluencerActive(ctx context.Context, id int64, active bool) error {
	return requireRow(q.db.ExecContext(ctx, `
		UPDATE influencer_profiles SET is_active = $2, updated_at = NOW() WHERE id = $1
	`, id, active))
}

// ListInfluencers joins profiles with the owner's public fields.
func (q *Queries) ListInfluencers(ctx context.Context, activeOnly bool) ([]models.InfluencerListing, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+profileColumns+`, u.first_name, u.last_name, u.image_url
		FROM influencer_profiles p
		JOIN users u ON u.id = p.user_id
		WHERE ($1 = FALSE OR p.is_active = TRUE)
		ORDER BY p.is_verified DESC, p.created_at DESC
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.InfluencerListing
	for rows.Next() {
		var l models.InfluencerListing
		var categories, links pq.StringArray
		dest := append(profileDest(&l.InfluencerProfile, &categories, &links), &l.FirstName, &l.LastName, &l.ImageURL)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		l.Categories = []string(categories)
		l.SocialLinks = []string(links)
		out = append(out, l)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
