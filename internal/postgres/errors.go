package postgres

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cwrk-planet/meet-service/internal/domain"
)

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique violation
			return domain.ErrAlreadyExists
		case "22P02": // invalid text representation
			return fmt.Errorf("%w: %s", domain.ErrValidation, pgErr.Message)
		}
	}

	return err
}

// validID — id комнат хранятся как UUID, строка другого вида заведомо ничего не найдёт.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
