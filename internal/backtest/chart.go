package backtest

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"wick/internal/market"
	"wick/internal/robot"
	"wick/internal/strategy"
)

const (
	chartWidthPx  = 1600
	chartHeightPx = 600

	colorBull = "#34d399"
	colorBear = "#f87171"
	colorBuy  = "#3b82f6"
	colorSell = "#fbbf24"
)

// RenderChart writes an HTML kline chart of the replayed range with
// buy/sell markers at the signal candles.
func RenderChart(path, instrumentID string, candles []market.Candle, signals []robot.Signal) error {
	if len(candles) == 0 {
		return fmt.Errorf("no candles to render for %s", instrumentID)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", chartHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    instrumentID,
			Subtitle: fmt.Sprintf("%d candles, %d signals", len(candles), len(signals)),
			Left:     "left",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := make([]string, len(candles))
	indexByTime := make(map[int64]int, len(candles))
	klineData := make([]opts.KlineData, len(candles))
	for i, c := range candles {
		xAxis[i] = c.Time.UTC().Format("01-02 15:04")
		indexByTime[c.Time.UnixMilli()] = i
		klineData[i] = opts.KlineData{Value: [4]float64{
			c.Open.InexactFloat64(),
			c.Close.InexactFloat64(),
			c.Low.InexactFloat64(),
			c.High.InexactFloat64(),
		}}
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", klineData)

	buys := make([]opts.ScatterData, 0, len(signals))
	sells := make([]opts.ScatterData, 0, len(signals))
	for _, sig := range signals {
		idx, ok := indexByTime[sig.LastCandle.Time.UnixMilli()]
		if !ok {
			continue
		}
		point := opts.ScatterData{
			Value:      []interface{}{xAxis[idx], sig.LastCandle.Close.InexactFloat64()},
			Symbol:     "triangle",
			SymbolSize: 14,
		}
		if sig.Action == strategy.ActionBuy {
			buys = append(buys, point)
		} else {
			point.SymbolRotate = 180
			sells = append(sells, point)
		}
	}

	markers := charts.NewScatter()
	markers.SetXAxis(xAxis)
	markers.AddSeries("Buy", buys, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBuy}))
	markers.AddSeries("Sell", sells, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorSell}))
	kline.Overlap(markers)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	defer f.Close()
	if err := kline.Render(f); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return nil
}
