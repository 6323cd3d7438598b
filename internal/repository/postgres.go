// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/laundromat-system/internal/model"
	"github.com/mmeshcher/laundromat-system/internal/pricing"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCustomerNotFound возвращается, если клиент не найден.
var (
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrAffiliateNotFound возвращается, если указанный партнёр не найден.
	ErrAffiliateNotFound = errors.New("affiliate not found")
	// ErrOrderNotFound возвращается, если заказ не существует или уже полностью взвешен.
	ErrOrderNotFound = errors.New("order not found or not awaiting weighing")
	// ErrDuplicateBag возвращается при повторном взвешивании мешка с тем же идентификатором.
	ErrDuplicateBag = errors.New("bag already weighed for this order")
)

const orderFields = `number, customer_id, affiliate_id, estimated_weight, number_of_bags,
	premium_detergent, fabric_softener, stain_remover,
	base_rate, addon_rate, commission_rate,
	minimum_fee, per_bag_fee, total_fee, minimum_applied,
	addon_total, wdf_credit_applied, estimated_total,
	status, bags_weighed, actual_weight,
	weight_difference, wdf_credit_generated, actual_addon_total, actual_total, affiliate_commission,
	created_at, weighed_at`

// OrderDraft содержит проверенные параметры создаваемого заказа вместе со
// снимком тарифов на момент создания.
type OrderDraft struct {
	Number          string
	CustomerID      int64
	AffiliateID     *int64
	EstimatedWeight decimal.Decimal
	NumberOfBags    int
	AddOns          model.AddOns
	Rates           model.Rates
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет транзакцию при сериализационных конфликтах, дедлоках
// и временных сетевых ошибках. Доменные ошибки не ретраятся.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateCustomer создаёт нового клиента.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customers (name) VALUES ($1) RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

// GetCustomer возвращает клиента вместе с текущим кредитным балансом WDF.
func (r *PostgresRepository) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, wdf_credit, wdf_credit_from_order, wdf_credit_updated_at, created_at
		 FROM customers WHERE id = $1`,
		id,
	)

	var c model.Customer
	err := row.Scan(&c.ID, &c.Name, &c.WDFCredit, &c.WDFCreditFromOrder, &c.WDFCreditUpdatedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return &c, nil
}

// CreateAffiliate создаёт нового партнёра.
func (r *PostgresRepository) CreateAffiliate(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO affiliates (name) VALUES ($1) RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create affiliate: %w", err)
	}
	return id, nil
}

// GetRates возвращает текущие тарифы. При отсутствии сохранённой конфигурации
// возвращаются тарифы по умолчанию, это не ошибка.
func (r *PostgresRepository) GetRates(ctx context.Context) (model.Rates, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT base_rate, commission_rate, addon_rate, minimum_fee, per_bag_fee, updated_at
		 FROM rates WHERE id = 1`,
	)

	var rates model.Rates
	err := row.Scan(&rates.BaseRate, &rates.CommissionRate, &rates.AddOnRate,
		&rates.MinimumFee, &rates.PerBagFee, &rates.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DefaultRates(), nil
		}
		return model.Rates{}, fmt.Errorf("get rates: %w", err)
	}

	return rates, nil
}

// UpdateRates сохраняет тарифы, заданные администратором. Уже созданные заказы
// продолжают использовать тарифы, зафиксированные при их создании.
func (r *PostgresRepository) UpdateRates(ctx context.Context, rates model.Rates) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO rates (id, base_rate, commission_rate, addon_rate, minimum_fee, per_bag_fee)
		 VALUES (1, $1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET base_rate = EXCLUDED.base_rate,
		     commission_rate = EXCLUDED.commission_rate,
		     addon_rate = EXCLUDED.addon_rate,
		     minimum_fee = EXCLUDED.minimum_fee,
		     per_bag_fee = EXCLUDED.per_bag_fee,
		     updated_at = now()`,
		rates.BaseRate, rates.CommissionRate, rates.AddOnRate, rates.MinimumFee, rates.PerBagFee,
	)
	if err != nil {
		return fmt.Errorf("update rates: %w", err)
	}
	return nil
}

// CreateOrder создаёт заказ в одной транзакции: атомарно считывает и обнуляет
// кредитный баланс клиента, рассчитывает стоимость и вставляет строку заказа.
// При любой ошибке транзакция откатывается, кредит остаётся нетронутым.
func (r *PostgresRepository) CreateOrder(ctx context.Context, draft OrderDraft) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if draft.AffiliateID != nil {
			var exists bool
			err = tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM affiliates WHERE id = $1)`,
				*draft.AffiliateID,
			).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check affiliate: %w", err)
			}
			if !exists {
				return ErrAffiliateNotFound
			}
		}

		// Атомарное чтение и обнуление кредита: конкурирующее создание заказа
		// для того же клиента увидит уже нулевой баланс.
		var creditApplied decimal.Decimal
		err = tx.QueryRow(ctx,
			`UPDATE customers AS c
			 SET wdf_credit = 0, wdf_credit_updated_at = now()
			 FROM (SELECT id, wdf_credit FROM customers WHERE id = $1 FOR UPDATE) AS prev
			 WHERE c.id = prev.id
			 RETURNING prev.wdf_credit`,
			draft.CustomerID,
		).Scan(&creditApplied)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCustomerNotFound
			}
			return fmt.Errorf("consume credit: %w", err)
		}

		fee := pricing.DeliveryFee(draft.NumberOfBags, draft.Rates.MinimumFee, draft.Rates.PerBagFee)
		addOnTotal := pricing.AddOnTotal(draft.AddOns, draft.EstimatedWeight, draft.Rates.AddOnRate)
		estimatedTotal := pricing.Total(draft.EstimatedWeight, draft.Rates.BaseRate, fee.TotalFee, addOnTotal, creditApplied)

		var createdAt time.Time
		err = tx.QueryRow(ctx,
			`INSERT INTO orders (number, customer_id, affiliate_id, estimated_weight, number_of_bags,
			                     premium_detergent, fabric_softener, stain_remover,
			                     base_rate, addon_rate, commission_rate,
			                     minimum_fee, per_bag_fee, total_fee, minimum_applied,
			                     addon_total, wdf_credit_applied, estimated_total, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			 RETURNING created_at`,
			draft.Number, draft.CustomerID, draft.AffiliateID, draft.EstimatedWeight, draft.NumberOfBags,
			draft.AddOns.PremiumDetergent, draft.AddOns.FabricSoftener, draft.AddOns.StainRemover,
			draft.Rates.BaseRate, draft.Rates.AddOnRate, draft.Rates.CommissionRate,
			fee.MinimumFee, fee.PerBagFee, fee.TotalFee, fee.MinimumApplied,
			addOnTotal, creditApplied, estimatedTotal, string(model.OrderStatusPending),
		).Scan(&createdAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		order = &model.Order{
			Number:           draft.Number,
			CustomerID:       draft.CustomerID,
			AffiliateID:      draft.AffiliateID,
			EstimatedWeight:  draft.EstimatedWeight,
			NumberOfBags:     draft.NumberOfBags,
			AddOns:           draft.AddOns,
			BaseRate:         draft.Rates.BaseRate,
			AddOnRate:        draft.Rates.AddOnRate,
			CommissionRate:   draft.Rates.CommissionRate,
			Fee:              fee,
			AddOnTotal:       addOnTotal,
			WDFCreditApplied: creditApplied,
			EstimatedTotal:   estimatedTotal,
			Status:           model.OrderStatusPending,
			ActualWeight:     decimal.Zero,
			CreatedAt:        createdAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrder возвращает заказ по номеру.
func (r *PostgresRepository) GetOrder(ctx context.Context, number string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderFields+` FROM orders WHERE number = $1`,
		number,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

// GetOrdersByCustomer возвращает список заказов клиента.
func (r *PostgresRepository) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderFields+` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// GetOrderBags возвращает взвешенные мешки заказа.
func (r *PostgresRepository) GetOrderBags(ctx context.Context, number string) ([]model.Bag, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT bag_id, weight, recorded_at FROM order_bags WHERE order_number = $1 ORDER BY recorded_at`,
		number,
	)
	if err != nil {
		return nil, fmt.Errorf("select bags: %w", err)
	}
	defer rows.Close()

	var bags []model.Bag
	for rows.Next() {
		var b model.Bag
		if err := rows.Scan(&b.BagID, &b.Weight, &b.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan bag: %w", err)
		}
		bags = append(bags, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return bags, nil
}

// RecordBagWeight фиксирует вес одного мешка. Счётчики заказа увеличиваются
// одним атомарным UPDATE, поэтому конкурирующие взвешивания не теряются.
// Запрос, чьё приращение довело счётчик до числа мешков заказа, в той же
// транзакции выполняет сверку: рассчитывает разницу весов, фактическую
// стоимость, комиссию партнёра и записывает кредит клиенту.
func (r *PostgresRepository) RecordBagWeight(ctx context.Context, number, bagID string, weight decimal.Decimal) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO order_bags (order_number, bag_id, weight) VALUES ($1, $2, $3)`,
			number, bagID, weight,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				if pgErr.Code == pgerrcode.UniqueViolation {
					return fmt.Errorf("%w: %s", ErrDuplicateBag, bagID)
				}
				if pgErr.Code == pgerrcode.ForeignKeyViolation {
					return ErrOrderNotFound
				}
			}
			return fmt.Errorf("insert bag: %w", err)
		}

		// Единственное атомарное приращение счётчиков; статус пересчитывается
		// тем же оператором из значений до обновления.
		var (
			customerID      int64
			affiliateID     *int64
			estimatedWeight decimal.Decimal
			numberOfBags    int
			bagsWeighed     int
			actualWeight    decimal.Decimal
			status          string
			baseRate        decimal.Decimal
			addOnRate       decimal.Decimal
			commissionRate  decimal.Decimal
			totalFee        decimal.Decimal
			creditApplied   decimal.Decimal
			addOns          model.AddOns
		)
		err = tx.QueryRow(ctx,
			`UPDATE orders
			 SET bags_weighed = bags_weighed + 1,
			     actual_weight = actual_weight + $2,
			     status = CASE WHEN bags_weighed + 1 >= number_of_bags
			                   THEN 'FULLY_WEIGHED'
			                   ELSE 'PARTIALLY_WEIGHED' END
			 WHERE number = $1 AND status <> 'FULLY_WEIGHED'
			 RETURNING customer_id, affiliate_id, estimated_weight, number_of_bags,
			           bags_weighed, actual_weight, status,
			           base_rate, addon_rate, commission_rate, total_fee, wdf_credit_applied,
			           premium_detergent, fabric_softener, stain_remover`,
			number, weight,
		).Scan(&customerID, &affiliateID, &estimatedWeight, &numberOfBags,
			&bagsWeighed, &actualWeight, &status,
			&baseRate, &addOnRate, &commissionRate, &totalFee, &creditApplied,
			&addOns.PremiumDetergent, &addOns.FabricSoftener, &addOns.StainRemover)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("increment weighing counters: %w", err)
		}

		if model.OrderStatus(status) == model.OrderStatusFullyWeighed {
			weightDifference := actualWeight.Sub(estimatedWeight)
			creditGenerated := pricing.CreditForDifference(weightDifference, baseRate)
			actualAddOnTotal := pricing.AddOnTotal(addOns, actualWeight, addOnRate)
			actualTotal := pricing.Total(actualWeight, baseRate, totalFee, actualAddOnTotal, creditApplied)

			var commission *decimal.Decimal
			if affiliateID != nil {
				c := pricing.Commission(actualWeight, baseRate, commissionRate, totalFee)
				commission = &c
			}

			_, err = tx.Exec(ctx,
				`UPDATE orders
				 SET weight_difference = $2,
				     wdf_credit_generated = $3,
				     actual_addon_total = $4,
				     actual_total = $5,
				     affiliate_commission = $6,
				     weighed_at = now()
				 WHERE number = $1`,
				number, weightDifference, creditGenerated, actualAddOnTotal, actualTotal, commission,
			)
			if err != nil {
				return fmt.Errorf("settle order: %w", err)
			}

			// Депозит кредита перезаписывает непотреблённый остаток, а не
			// суммируется с ним: отслеживается только последняя сверка.
			_, err = tx.Exec(ctx,
				`UPDATE customers
				 SET wdf_credit = $2, wdf_credit_from_order = $3, wdf_credit_updated_at = now()
				 WHERE id = $1`,
				customerID, creditGenerated, number,
			)
			if err != nil {
				return fmt.Errorf("deposit credit: %w", err)
			}
		}

		row := tx.QueryRow(ctx, `SELECT `+orderFields+` FROM orders WHERE number = $1`, number)
		o, err := scanOrder(row)
		if err != nil {
			return fmt.Errorf("reload order: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                   model.Order
		status              string
		weightDifference    decimal.NullDecimal
		creditGenerated     decimal.NullDecimal
		actualAddOnTotal    decimal.NullDecimal
		actualTotal         decimal.NullDecimal
		affiliateCommission decimal.NullDecimal
	)

	err := row.Scan(&o.Number, &o.CustomerID, &o.AffiliateID, &o.EstimatedWeight, &o.NumberOfBags,
		&o.AddOns.PremiumDetergent, &o.AddOns.FabricSoftener, &o.AddOns.StainRemover,
		&o.BaseRate, &o.AddOnRate, &o.CommissionRate,
		&o.Fee.MinimumFee, &o.Fee.PerBagFee, &o.Fee.TotalFee, &o.Fee.MinimumApplied,
		&o.AddOnTotal, &o.WDFCreditApplied, &o.EstimatedTotal,
		&status, &o.BagsWeighed, &o.ActualWeight,
		&weightDifference, &creditGenerated, &actualAddOnTotal, &actualTotal, &affiliateCommission,
		&o.CreatedAt, &o.WeighedAt)
	if err != nil {
		return nil, err
	}

	o.Status = model.OrderStatus(status)
	o.Fee.NumberOfBags = o.NumberOfBags
	o.WeightDifference = nullableDecimal(weightDifference)
	o.WDFCreditGenerated = nullableDecimal(creditGenerated)
	o.ActualAddOnTotal = nullableDecimal(actualAddOnTotal)
	o.ActualTotal = nullableDecimal(actualTotal)
	o.AffiliateCommission = nullableDecimal(affiliateCommission)

	return &o, nil
}

func nullableDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}
