package xlsxGenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KotFed0t/portfolio_rebalancer/internal/model"
	"github.com/KotFed0t/portfolio_rebalancer/utils"
	"github.com/xuri/excelize/v2"
)

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

// Generate renders one sheet per portfolio: positions with prices, held
// quantities, target vs actual percent, and a summary row.
func (g *XLSXGenerator) Generate(ctx context.Context, portfolios []model.PortfolioReport) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	if len(portfolios) == 0 {
		return nil, "", errors.New("empty portfolios")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	for i, portfolio := range portfolios {
		err := g.fillSheet(ctx, f, portfolio, i+1)
		if err != nil {
			return nil, "", err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) fillSheet(ctx context.Context, f *excelize.File, portfolio model.PortfolioReport, ordinal int) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.fillSheet"

	sheetName := fmt.Sprintf("%d. %s", ordinal, portfolio.PortfolioName)
	_, err := f.NewSheet(sheetName)
	if err != nil {
		slog.Error("got error while creating NewSheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{"#cfe2f3"},
		},
	})
	if err != nil {
		return err
	}

	if err := f.MergeCell(sheetName, "A1", "F1"); err != nil {
		return err
	}
	f.SetCellValue(sheetName, "A1", "Positions")
	if err := f.SetCellStyle(sheetName, "A1", "A1", headerStyle); err != nil {
		return fmt.Errorf("apply style: %w", err)
	}

	_ = f.SetCellStr(sheetName, "A2", "symbol")
	_ = f.SetCellStr(sheetName, "B2", "price")
	_ = f.SetCellStr(sheetName, "C2", "quantity")
	_ = f.SetCellStr(sheetName, "D2", "target %")
	_ = f.SetCellStr(sheetName, "E2", "actual %")
	_ = f.SetCellStr(sheetName, "F2", "value")

	row := 3
	for _, position := range portfolio.Positions {
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", row), position.Symbol)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", row), position.Price.String())
		_ = f.SetCellStr(sheetName, fmt.Sprintf("C%d", row), position.Quantity.String())
		_ = f.SetCellStr(sheetName, fmt.Sprintf("D%d", row), position.TargetPercent.String())
		_ = f.SetCellStr(sheetName, fmt.Sprintf("E%d", row), position.ActualPercent.String())
		_ = f.SetCellStr(sheetName, fmt.Sprintf("F%d", row), position.TotalValue.String())
		row++
	}

	summaryRow := row + 1
	_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", summaryRow), "total value")
	_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", summaryRow), portfolio.TotalValue.String())
	_ = f.SetCellStr(sheetName, fmt.Sprintf("C%d", summaryRow), "retail")
	_ = f.SetCellBool(sheetName, fmt.Sprintf("D%d", summaryRow), portfolio.IsRetail)
	_ = f.SetCellStr(sheetName, fmt.Sprintf("E%d", summaryRow), "stale")
	_ = f.SetCellBool(sheetName, fmt.Sprintf("F%d", summaryRow), portfolio.Stale)

	return nil
}
