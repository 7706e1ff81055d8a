package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/core/port"
	"github.com/arklim/srm-service/internal/repository"
)

// TagRepository implements port.TagRepository for PostgreSQL.
type TagRepository struct {
	pool    pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.TagRepository = (*TagRepository)(nil)

// NewTagRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewTagRepository(exec pgExecutor) *TagRepository {
	repo := &TagRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(pgPool); ok {
		repo.pool = pool
	}
	return repo
}

var tagColumns = []string{"id", "name", "description", "color"}

// List returns all tags ordered by name.
func (r *TagRepository) List(ctx context.Context) ([]domain.Tag, error) {
	stmt, args, err := r.builder.
		Select(tagColumns...).
		From("srm.tag_defs").
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tags sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := make([]domain.Tag, 0)
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// GetByID retrieves a tag by identifier.
func (r *TagRepository) GetByID(ctx context.Context, id int64) (*domain.Tag, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByName retrieves a tag by its normalised name.
func (r *TagRepository) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	return r.getOne(ctx, squirrel.Eq{"name": name})
}

func (r *TagRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Tag, error) {
	stmt, args, err := r.builder.
		Select(tagColumns...).
		From("srm.tag_defs").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select tag sql: %w", err)
	}

	tag, err := scanTag(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select tag: %w", err)
	}
	return &tag, nil
}

// Create inserts a tag and returns it with its generated id.
func (r *TagRepository) Create(ctx context.Context, tag domain.Tag) (domain.Tag, error) {
	stmt, args, err := r.builder.
		Insert("srm.tag_defs").
		Columns("name", "description", "color").
		Values(tag.Name, tag.Description, tag.Color).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Tag{}, fmt.Errorf("build insert tag sql: %w", err)
	}

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&tag.ID); err != nil {
		if pgErrorCode(err) == pgErrUniqueViolation {
			return domain.Tag{}, repository.ErrConflict
		}
		return domain.Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return tag, nil
}

// Update applies the non-nil fields of upd and returns the stored tag.
func (r *TagRepository) Update(ctx context.Context, id int64, upd domain.TagUpdate) (domain.Tag, error) {
	values := map[string]any{}
	if upd.Name != nil {
		values["name"] = *upd.Name
	}
	if upd.Description != nil {
		values["description"] = *upd.Description
	}
	if upd.Color != nil {
		values["color"] = *upd.Color
	}
	if len(values) == 0 {
		tag, err := r.GetByID(ctx, id)
		if err != nil {
			return domain.Tag{}, err
		}
		return *tag, nil
	}

	stmt, args, err := r.builder.
		Update("srm.tag_defs").
		SetMap(values).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING id, name, description, color").
		ToSql()
	if err != nil {
		return domain.Tag{}, fmt.Errorf("build update tag sql: %w", err)
	}

	tag, err := scanTag(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return domain.Tag{}, repository.ErrNotFound
		case pgErrorCode(err) == pgErrUniqueViolation:
			return domain.Tag{}, repository.ErrConflict
		}
		return domain.Tag{}, fmt.Errorf("update tag: %w", err)
	}
	return tag, nil
}

// Delete removes the tag and its supplier links in one transaction.
func (r *TagRepository) Delete(ctx context.Context, id int64) error {
	_, err := inTx(ctx, r.pool, r.exec, func(tx pgExecutor) (struct{}, error) {
		linksSQL, linksArgs, err := r.builder.
			Delete("srm.supplier_tags").
			Where(squirrel.Eq{"tag_id": id}).
			ToSql()
		if err != nil {
			return struct{}{}, fmt.Errorf("build delete tag links sql: %w", err)
		}
		if _, err := tx.Exec(ctx, linksSQL, linksArgs...); err != nil {
			return struct{}{}, fmt.Errorf("delete tag links: %w", err)
		}

		tagSQL, tagArgs, err := r.builder.
			Delete("srm.tag_defs").
			Where(squirrel.Eq{"id": id}).
			ToSql()
		if err != nil {
			return struct{}{}, fmt.Errorf("build delete tag sql: %w", err)
		}
		tag, err := tx.Exec(ctx, tagSQL, tagArgs...)
		if err != nil {
			return struct{}{}, fmt.Errorf("delete tag: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return struct{}{}, repository.ErrNotFound
		}
		return struct{}{}, nil
	})
	return err
}

// AssignSuppliers links existing suppliers to the tag. Existing links are left untouched by the
// unique key, so only newly linked supplier ids come back from the insert.
func (r *TagRepository) AssignSuppliers(ctx context.Context, tagID int64, supplierIDs []int64) ([]int64, error) {
	if len(supplierIDs) == 0 {
		return []int64{}, nil
	}

	stmt, args, err := r.builder.
		Insert("srm.supplier_tags").
		Columns("supplier_id", "tag_id").
		Select(squirrel.
			Select("s.id").
			Column("?::bigint", tagID).
			From("srm.suppliers s").
			Where("s.id = ANY(?)", supplierIDs)).
		Suffix("ON CONFLICT (supplier_id, tag_id) DO NOTHING RETURNING supplier_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build assign tag sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, r.mapAssignError(err)
	}
	added, err := collectInt64s(rows)
	if err != nil {
		return nil, r.mapAssignError(err)
	}
	return added, nil
}

func (r *TagRepository) mapAssignError(err error) error {
	if pgErrorCode(err) == pgErrForeignKeyViolation {
		return repository.ErrNotFound
	}
	return fmt.Errorf("assign tag to suppliers: %w", err)
}

// RemoveSuppliers deletes the links between the tag and the suppliers and returns the
// supplier ids whose link existed.
func (r *TagRepository) RemoveSuppliers(ctx context.Context, tagID int64, supplierIDs []int64) ([]int64, error) {
	if len(supplierIDs) == 0 {
		return []int64{}, nil
	}

	stmt, args, err := r.builder.
		Delete("srm.supplier_tags").
		Where(squirrel.Eq{"tag_id": tagID}).
		Where("supplier_id = ANY(?)", supplierIDs).
		Suffix("RETURNING supplier_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build remove tag sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("remove tag from suppliers: %w", err)
	}
	removed, err := collectInt64s(rows)
	if err != nil {
		return nil, fmt.Errorf("remove tag from suppliers: %w", err)
	}
	return removed, nil
}

// ListSuppliers returns suppliers carrying the tag ordered by company name.
func (r *TagRepository) ListSuppliers(ctx context.Context, tagID int64) ([]domain.Supplier, error) {
	stmt, args, err := r.builder.
		Select(supplierColumns("s")...).
		From("srm.suppliers s").
		Join("srm.supplier_tags st ON st.supplier_id = s.id").
		Where(squirrel.Eq{"st.tag_id": tagID}).
		OrderBy("s.company_name", "s.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tag suppliers sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list tag suppliers: %w", err)
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0)
	for rows.Next() {
		var s domain.Supplier
		if err := rows.Scan(&s.ID, &s.CompanyName, &s.Category, &s.Region, &s.Status, &s.ContactEmail); err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		suppliers = append(suppliers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag suppliers: %w", err)
	}
	return suppliers, nil
}

// ListSupplierIDsByTags returns distinct supplier ids carrying any of the tags in ascending order.
func (r *TagRepository) ListSupplierIDsByTags(ctx context.Context, tagIDs []int64) ([]int64, error) {
	if len(tagIDs) == 0 {
		return []int64{}, nil
	}

	stmt, args, err := r.builder.
		Select("supplier_id").
		Distinct().
		From("srm.supplier_tags").
		Where("tag_id = ANY(?)", tagIDs).
		OrderBy("supplier_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tagged supplier ids sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list tagged supplier ids: %w", err)
	}
	ids, err := collectInt64s(rows)
	if err != nil {
		return nil, fmt.Errorf("scan tagged supplier ids: %w", err)
	}
	return ids, nil
}

// ReplaceSupplierTags makes tagIDs the complete tag set of the supplier and returns the tags it
// carries afterwards, ordered by name. The supplier row is locked so concurrent replacements
// of the same supplier apply one after another.
func (r *TagRepository) ReplaceSupplierTags(ctx context.Context, supplierID int64, tagIDs []int64) ([]domain.Tag, error) {
	if tagIDs == nil {
		tagIDs = []int64{}
	}

	lockSQL, lockArgs, err := r.builder.
		Select("id").
		From("srm.suppliers").
		Where(squirrel.Eq{"id": supplierID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lock supplier sql: %w", err)
	}
	pruneSQL, pruneArgs, err := r.builder.
		Delete("srm.supplier_tags").
		Where(squirrel.Eq{"supplier_id": supplierID}).
		Where("NOT (tag_id = ANY(?))", tagIDs).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prune supplier tags sql: %w", err)
	}
	linkSQL, linkArgs, err := r.builder.
		Insert("srm.supplier_tags").
		Columns("supplier_id", "tag_id").
		Select(squirrel.
			Select().
			Column("?::bigint", supplierID).
			Column("t.id").
			From("srm.tag_defs t").
			Where("t.id = ANY(?)", tagIDs)).
		Suffix("ON CONFLICT (supplier_id, tag_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build link supplier tags sql: %w", err)
	}
	listSQL, listArgs, err := r.builder.
		Select("t.id", "t.name", "t.description", "t.color").
		From("srm.tag_defs t").
		Join("srm.supplier_tags st ON st.tag_id = t.id").
		Where(squirrel.Eq{"st.supplier_id": supplierID}).
		OrderBy("t.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list supplier tags sql: %w", err)
	}

	return inTx(ctx, r.pool, r.exec, func(tx pgExecutor) ([]domain.Tag, error) {
		var locked int64
		if err := tx.QueryRow(ctx, lockSQL, lockArgs...).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, repository.ErrNotFound
			}
			return nil, fmt.Errorf("lock supplier: %w", err)
		}

		if _, err := tx.Exec(ctx, pruneSQL, pruneArgs...); err != nil {
			return nil, fmt.Errorf("prune supplier tags: %w", err)
		}
		if len(tagIDs) > 0 {
			if _, err := tx.Exec(ctx, linkSQL, linkArgs...); err != nil {
				return nil, fmt.Errorf("link supplier tags: %w", err)
			}
		}

		rows, err := tx.Query(ctx, listSQL, listArgs...)
		if err != nil {
			return nil, fmt.Errorf("list supplier tags: %w", err)
		}
		defer rows.Close()

		tags := make([]domain.Tag, 0, len(tagIDs))
		for rows.Next() {
			tag, err := scanTag(rows)
			if err != nil {
				return nil, fmt.Errorf("scan supplier tag: %w", err)
			}
			tags = append(tags, tag)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate supplier tags: %w", err)
		}
		return tags, nil
	})
}

func scanTag(row pgx.Row) (domain.Tag, error) {
	var tag domain.Tag
	if err := row.Scan(&tag.ID, &tag.Name, &tag.Description, &tag.Color); err != nil {
		return domain.Tag{}, err
	}
	return tag, nil
}

func supplierColumns(alias string) []string {
	cols := []string{"id", "company_name", "category", "region", "status", "contact_email"}
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return cols
}
