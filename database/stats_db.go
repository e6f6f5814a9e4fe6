package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// DatasetCounts holds aggregate record counts for one dataset.
type DatasetCounts struct {
	Images      int64 `json:"images"`
	Categories  int64 `json:"categories"`
	Annotations int64 `json:"annotations"`
}

// GetDatasetCounts returns the number of images, categories and annotations
// belonging to a dataset. Used by the dataset list/detail endpoints and the
// merge analyze response.
func GetDatasetCounts(db *sql.DB, datasetID uint) (DatasetCounts, error) {
	var counts DatasetCounts

	type target struct {
		table string
		dest  *int64
	}
	for _, t := range []target{
		{"images", &counts.Images},
		{"categories", &counts.Categories},
		{"annotations", &counts.Annotations},
	} {
		queryBuilder := psql.Select("COUNT(*)").
			From(t.table).
			Where(sq.Eq{"dataset_id": datasetID})

		sqlStr, args, err := queryBuilder.ToSql()
		if err != nil {
			return DatasetCounts{}, fmt.Errorf("failed to build count query for %s: %w", t.table, err)
		}
		if err := db.QueryRow(sqlStr, args...).Scan(t.dest); err != nil {
			return DatasetCounts{}, fmt.Errorf("failed to count %s for dataset %d: %w", t.table, datasetID, err)
		}
	}

	return counts, nil
}

// GetAnnotationCountsByCategory returns annotation counts keyed by category
// id across the given datasets.
func GetAnnotationCountsByCategory(db *sql.DB, datasetIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64)
	if len(datasetIDs) == 0 {
		return counts, nil
	}

	queryBuilder := psql.Select("category_id", "COUNT(*)").
		From("annotations").
		Where(sq.Eq{"dataset_id": datasetIDs}).
		GroupBy("category_id")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build annotation count query: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotation counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var categoryID uint
		var count int64
		if err := rows.Scan(&categoryID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan annotation count row: %w", err)
		}
		counts[categoryID] = count
	}
	return counts, rows.Err()
}

// GetAnnotationTotalsByDataset returns total annotation counts keyed by
// dataset id.
func GetAnnotationTotalsByDataset(db *sql.DB, datasetIDs []uint) (map[uint]int64, error) {
	totals := make(map[uint]int64)
	if len(datasetIDs) == 0 {
		return totals, nil
	}

	queryBuilder := psql.Select("dataset_id", "COUNT(*)").
		From("annotations").
		Where(sq.Eq{"dataset_id": datasetIDs}).
		GroupBy("dataset_id")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build annotation totals query: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotation totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var datasetID uint
		var count int64
		if err := rows.Scan(&datasetID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan annotation total row: %w", err)
		}
		totals[datasetID] = count
	}
	return totals, rows.Err()
}
