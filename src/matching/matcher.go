package matching

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/lynardsalingujay/lynardme-datafeed/src/models"
)

// Open/close roles of a transaction within a trade's lifecycle.
const (
	RoleOpen       = "open"
	RoleClose      = "close"
	RoleConversion = "conversion"
)

// MatchedTransaction is a transaction annotated by the matcher. The matcher
// never mutates its input; it produces these copies.
type MatchedTransaction struct {
	models.Transaction

	// Date is the calendar day of TransactionTime (UTC).
	Date         time.Time
	OpenClose    string
	Geography    string
	TradeID      models.TradeID
	TradeSizeGBP float64
}

// Result is the annotated transaction sequence plus the rows that could not
// be attributed to any trade. Unmatched rows are also present in Rows with
// an unmatched trade id; they are never dropped or coerced.
type Result struct {
	Rows      []MatchedTransaction
	Unmatched []MatchedTransaction
}

// Err returns a MatchingAmbiguityError describing the unmatched rows, or nil.
func (r Result) Err() error {
	if len(r.Unmatched) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.Unmatched))
	for _, row := range r.Unmatched {
		keys = append(keys, row.UniqueKey)
	}
	return &models.MatchingAmbiguityError{UniqueKeys: keys}
}

// Config carries the matcher's empirically chosen constants. The defaults
// are the values the matching heuristics were tuned with; they are exposed
// as configuration, not corrected.
type Config struct {
	// TestSizeThreshold: opening fund transactions below this gross value
	// are operational test trades, not real positions.
	TestSizeThreshold float64
	// SpotCloseBand: an fx-spot transaction closes a position only when its
	// size is under this multiple of the prior running quantity.
	SpotCloseBand float64
	// PlausibilityFloor: a candidate trade is accepted for an fx-spot leg
	// only when the leg exceeds this fraction of the trade's gross size.
	PlausibilityFloor float64
	// TestUniqueKeys lists known synthetic fixture rows to exclude entirely.
	TestUniqueKeys []string
}

func DefaultConfig() Config {
	return Config{
		TestSizeThreshold: 100000,
		SpotCloseBand:     1.2,
		PlausibilityFloor: 0.02,
	}
}

var ErrMatcherConsumed = errors.New("trade matcher already consumed; construct a fresh matcher per run")

// geographyWords maps, per asset type, a geography to the asset-name words
// that imply it. Lookup tokenizes the asset name and requires an exact word
// match, so "ES" matches "ES/Z9 future" but not "ESTATE".
var geographyWords = map[models.AssetType]map[string][]string{
	models.IndexFuture: {
		"Japan": {"TP", "NK", "TOPIX", "Nikkei", "Topix"},
		"US":    {"ES", "RTY", "Russell", "SP-MIN", "SP-MINI", "S&P"},
	},
	models.Fund: {
		"Japan": {"Japan", "Jpn", "Fram", "Jap"},
		"US":    {"US", "Ame", "American", "Amer"},
	},
	models.FxForward: {
		"Japan": {"JPY"},
		"US":    {"USD"},
	},
	models.FxSpot: {
		"Japan": {"JPY"},
		"US":    {"USD"},
		"other": {"EUR"},
	},
}

// TradeMatcher groups an ordered transaction sequence into round-trip
// trades. All state is scoped to one Match call; a matcher must not be
// reused across runs.
type TradeMatcher struct {
	cfg      Config
	consumed bool

	nextTradeNumber int

	// open positions per symbol: trade number -> running signed quantity,
	// insertion order preserved for close matching.
	openSymbol map[string]*openTrades
	// most recent trade opened per geography.
	openGeo map[string]models.TradeID
	// trade closed on a (date, geography, asset type); consulted when an
	// open on the same day looks like a roll of the closed trade.
	closed map[rollKey]models.TradeID
	// cumulative absolute opening gross value per trade number.
	tradeSize map[int]float64

	fundSymbol    map[string]models.TradeID
	fundOpenDate  map[dateGeoKey]models.TradeID
	fundCloseDate map[dateGeoKey]models.TradeID
}

type dateGeoKey struct {
	date time.Time
	geo  string
}

type rollKey struct {
	date  time.Time
	geo   string
	asset models.AssetType
}

// openTrades is an insertion-ordered trade number -> quantity map.
type openTrades struct {
	order []int
	qty   map[int]float64
}

func (o *openTrades) add(n int, quantity float64) {
	if _, ok := o.qty[n]; !ok {
		o.order = append(o.order, n)
	}
	o.qty[n] += quantity
	if o.qty[n] == 0 {
		delete(o.qty, n)
		for i, m := range o.order {
			if m == n {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
	}
}

func (o *openTrades) latest() (int, bool) {
	best, found := 0, false
	for n := range o.qty {
		if !found || n > best {
			best, found = n, true
		}
	}
	return best, found
}

func NewTradeMatcher(cfg Config) *TradeMatcher {
	return &TradeMatcher{
		cfg:           cfg,
		openSymbol:    make(map[string]*openTrades),
		openGeo:       make(map[string]models.TradeID),
		closed:        make(map[rollKey]models.TradeID),
		tradeSize:     make(map[int]float64),
		fundSymbol:    make(map[string]models.TradeID),
		fundOpenDate:  make(map[dateGeoKey]models.TradeID),
		fundCloseDate: make(map[dateGeoKey]models.TradeID),
	}
}

// Match annotates every transaction with an open/close role, geography,
// trade id and trade size. Input may arrive in any order: the matcher sorts
// by transaction time (stable) before anything else, since the heuristics
// are order-dependent.
func (m *TradeMatcher) Match(txs []models.Transaction) (Result, error) {
	if m.consumed {
		return Result{}, ErrMatcherConsumed
	}
	m.consumed = true

	rows := make([]MatchedTransaction, 0, len(txs))
	for _, tx := range txs {
		if m.isTestUnique(tx.UniqueKey) {
			continue
		}
		t := tx.TransactionTime.UTC()
		rows = append(rows, MatchedTransaction{
			Transaction: tx,
			Date:        time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			TradeID:     models.UnmatchedTrade,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TransactionTime.Before(rows[j].TransactionTime)
	})

	m.assignDirectionalRoles(rows)
	m.markTestTrades(rows)
	if err := m.inferGeographies(rows); err != nil {
		return Result{}, err
	}
	m.assignFundTradeNumbers(rows)
	m.assignSpotRoles(rows)
	m.assignNonFundTradeNumbers(rows)
	m.applyTradeSizes(rows)

	res := Result{Rows: rows}
	for _, row := range rows {
		directional := row.OpenClose == RoleOpen || row.OpenClose == RoleClose
		if row.TradeID.IsUnmatched() && directional &&
			(matchableAsset(row.AssetType) || row.AssetType == models.Fund) {
			res.Unmatched = append(res.Unmatched, row)
		}
	}
	return res, nil
}

func (m *TradeMatcher) isTestUnique(key string) bool {
	for _, k := range m.cfg.TestUniqueKeys {
		if key != "" && key == k {
			return true
		}
	}
	return false
}

func matchableAsset(a models.AssetType) bool {
	switch a {
	case models.IndexFuture, models.FxSpot, models.FxForward:
		return true
	}
	return false
}

// assignDirectionalRoles sets open/close for the asset types whose role
// follows directly from the transaction type. Index futures are short-hedge
// positions: selling opens them.
func (m *TradeMatcher) assignDirectionalRoles(rows []MatchedTransaction) {
	for i := range rows {
		switch rows[i].AssetType {
		case models.Fund, models.FxForward:
			switch rows[i].TransactionType {
			case models.Buy:
				rows[i].OpenClose = RoleOpen
			case models.Sell:
				rows[i].OpenClose = RoleClose
			}
		case models.IndexFuture:
			switch rows[i].TransactionType {
			case models.Sell:
				rows[i].OpenClose = RoleOpen
			case models.Buy:
				rows[i].OpenClose = RoleClose
			}
		}
	}
}

// markTestTrades flags operational/demo trades before geography inference:
// a test transaction never needs a geography and must not raise on one.
func (m *TradeMatcher) markTestTrades(rows []MatchedTransaction) {
	for i := range rows {
		if rows[i].AssetType != models.Fund {
			continue
		}
		smallOpen := rows[i].OpenClose == RoleOpen && rows[i].GrossTransactionValue < m.cfg.TestSizeThreshold
		if rows[i].Currency != "GBP" || smallOpen {
			rows[i].TradeID = models.TestTrade
		}
	}
}

func (m *TradeMatcher) inferGeographies(rows []MatchedTransaction) error {
	for i := range rows {
		if rows[i].TradeID.IsTest() {
			continue
		}
		words, ok := geographyWords[rows[i].AssetType]
		if !ok {
			continue
		}
		geo, err := findGeography(words, rows[i].AssetName)
		if err != nil {
			return err
		}
		rows[i].Geography = geo
	}
	return nil
}

func findGeography(geoWords map[string][]string, assetName string) (string, error) {
	frags := tokenize(assetName)
	// deterministic geography precedence
	for _, geo := range []string{"Japan", "US", "other"} {
		for _, word := range geoWords[geo] {
			if frags[word] {
				return geo, nil
			}
		}
	}
	return "", &models.ClassificationError{Text: assetName}
}

func tokenize(text string) map[string]bool {
	frags := make(map[string]bool)
	start := -1
	isSep := func(r byte) bool { return r == ' ' || r == '/' || r == '(' || r == ')' }
	for i := 0; i <= len(text); i++ {
		if i == len(text) || isSep(text[i]) {
			if start >= 0 {
				frags[text[start:i]] = true
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	return frags
}

// assignFundTradeNumbers numbers fund trades by (date, geography): broker
// tickets opening the same geography on the same day are one trade. Closes
// resolve via the symbol's most recent open, recorded for date-based lookup
// by the non-fund pass. Afterwards, trades with exactly offsetting net
// quantities are merged: the broker sometimes splits one logical trade into
// tickets that must be recombined for P&L.
func (m *TradeMatcher) assignFundTradeNumbers(rows []MatchedTransaction) {
	order := processingOrder(rows)

	for _, i := range order {
		row := &rows[i]
		if row.AssetType != models.Fund || row.TradeID.IsTest() {
			continue
		}
		key := dateGeoKey{date: row.Date, geo: row.Geography}
		switch row.OpenClose {
		case RoleOpen:
			id, ok := m.fundOpenDate[key]
			if !ok {
				m.nextTradeNumber++
				id = models.OpenTrade(m.nextTradeNumber)
				m.fundOpenDate[key] = id
			}
			row.TradeID = id
			m.fundSymbol[row.Symbol] = id
			if n, ok := id.Number(); ok {
				m.tradeSize[n] += row.GrossTransactionValue
			}
		case RoleClose:
			id, ok := m.fundSymbol[row.Symbol]
			if !ok {
				id = models.UnmatchedTrade
			}
			row.TradeID = id
			m.fundCloseDate[key] = id
		}
	}

	m.mergeOffsettingFundTrades(rows)

	// re-record close dates with the post-merge trade numbers
	for _, i := range order {
		row := rows[i]
		if row.AssetType == models.Fund && row.OpenClose == RoleClose && !row.TradeID.IsTest() {
			m.fundCloseDate[dateGeoKey{date: row.Date, geo: row.Geography}] = row.TradeID
		}
	}
}

// processingOrder visits rows by (date, asset type, role) with closes ahead
// of opens, preserving time order within a group. Closing first is what lets
// a same-day open recognize the roll of the trade just closed.
func processingOrder(rows []MatchedTransaction) []int {
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := rows[order[a]], rows[order[b]]
		if !ra.Date.Equal(rb.Date) {
			return ra.Date.Before(rb.Date)
		}
		if ra.AssetType != rb.AssetType {
			return ra.AssetType < rb.AssetType
		}
		return roleRank(ra.OpenClose) < roleRank(rb.OpenClose)
	})
	return order
}

func roleRank(role string) int {
	switch role {
	case RoleClose:
		return 0
	case RoleConversion:
		return 1
	case RoleOpen:
		return 2
	}
	return 3
}

func (m *TradeMatcher) mergeOffsettingFundTrades(rows []MatchedTransaction) {
	net := make(map[int]float64)
	var numbers []int
	for _, row := range rows {
		if n, ok := row.TradeID.Number(); ok {
			if _, seen := net[n]; !seen {
				numbers = append(numbers, n)
			}
			net[n] += row.Quantity
		}
	}
	sort.Ints(numbers)

	byQuantity := make(map[float64]int)
	regroup := make(map[int]int)
	for _, n := range numbers {
		q := net[n]
		if earlier, ok := byQuantity[-q]; ok {
			regroup[n] = earlier
			delete(byQuantity, -q)
		} else if q != 0 {
			byQuantity[q] = n
		}
	}
	if len(regroup) == 0 {
		return
	}
	for i := range rows {
		if n, ok := rows[i].TradeID.Number(); ok {
			if into, ok := regroup[n]; ok {
				rows[i].TradeID = models.OpenTrade(into)
			}
		}
	}
	for n, into := range regroup {
		m.tradeSize[into] += m.tradeSize[n]
		delete(m.tradeSize, n)
	}
	for sym, id := range m.fundSymbol {
		if n, ok := id.Number(); ok {
			if into, ok := regroup[n]; ok {
				m.fundSymbol[sym] = models.OpenTrade(into)
			}
		}
	}
}

// assignSpotRoles classifies fx-spot transactions. They are conversions by
// default, reclassified to closes when the sign opposes the symbol's running
// position and the size stays inside the close band (guards against
// over-matching noise and rounding).
func (m *TradeMatcher) assignSpotRoles(rows []MatchedTransaction) {
	running := make(map[string]float64)
	for i := range rows {
		prev := running[rows[i].Symbol]
		running[rows[i].Symbol] = prev + rows[i].Quantity
		if rows[i].AssetType != models.FxSpot {
			continue
		}
		rows[i].OpenClose = RoleConversion
		q := rows[i].Quantity
		if sign(prev) != sign(q) && math.Abs(q) < m.cfg.SpotCloseBand*math.Abs(prev) {
			rows[i].OpenClose = RoleClose
		}
	}
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// assignNonFundTradeNumbers resolves future and fx legs. Opens first share
// same-day-geography numbers (multiple opening legs of one trade), then fall
// back to same-day rolls, the symbol's latest open trade, and finally the
// geography's latest open trade, each gated by plausibility. Closes match
// an open trade of the same symbol with opposite sign and sufficient
// magnitude, falling back to the day's fund close in the same geography.
func (m *TradeMatcher) assignNonFundTradeNumbers(rows []MatchedTransaction) {
	order := processingOrder(rows)
	m.forwardFillSameDayOpens(rows, order)

	for _, i := range order {
		row := &rows[i]
		if !matchableAsset(row.AssetType) || row.TradeID.IsTest() || row.Geography == "" {
			continue
		}
		switch row.OpenClose {
		case RoleOpen:
			if id, ok := m.guessOpenTradeNumber(row); ok {
				row.TradeID = id
				m.recordOpen(row, id)
			}
		case RoleClose:
			id, ok := m.findMatchingTrade(row)
			if !ok {
				id, ok = m.guessCloseTradeNumber(row)
			}
			if ok {
				row.TradeID = id
				m.recordOpen(row, id)
				m.recordClose(row, id)
			}
		}
	}
}

// forwardFillSameDayOpens copies an already-assigned trade number onto
// unassigned open legs sharing the same (date, geography).
func (m *TradeMatcher) forwardFillSameDayOpens(rows []MatchedTransaction, order []int) {
	last := make(map[dateGeoKey]models.TradeID)
	for _, i := range order {
		row := &rows[i]
		if row.OpenClose != RoleOpen || row.TradeID.IsTest() || row.Geography == "" {
			continue
		}
		key := dateGeoKey{date: row.Date, geo: row.Geography}
		if row.TradeID.IsOpen() {
			last[key] = row.TradeID
		} else if id, ok := last[key]; ok && matchableAsset(row.AssetType) {
			row.TradeID = id
		}
	}
}

func (m *TradeMatcher) guessOpenTradeNumber(row *MatchedTransaction) (models.TradeID, bool) {
	if row.TradeID.IsOpen() {
		return row.TradeID, true
	}
	// same-day roll: the geography closed a trade of this asset type today
	if id, ok := m.closed[rollKey{date: row.Date, geo: row.Geography, asset: row.AssetType}]; ok {
		return m.ifPlausibleSize(row, id)
	}
	if open, ok := m.openSymbol[row.Symbol]; ok {
		if n, ok := open.latest(); ok {
			return m.ifPlausibleSize(row, models.OpenTrade(n))
		}
	}
	if id, ok := m.openGeo[row.Geography]; ok && row.AssetType == models.IndexFuture {
		return m.ifPlausibleSize(row, id)
	}
	return models.UnmatchedTrade, false
}

func (m *TradeMatcher) guessCloseTradeNumber(row *MatchedTransaction) (models.TradeID, bool) {
	if row.TradeID.IsOpen() {
		return row.TradeID, true
	}
	if id, ok := m.fundCloseDate[dateGeoKey{date: row.Date, geo: row.Geography}]; ok && id.IsOpen() {
		return id, true
	}
	return models.UnmatchedTrade, false
}

// findMatchingTrade looks for an open trade on the same symbol whose running
// quantity opposes this transaction and can absorb it fully.
func (m *TradeMatcher) findMatchingTrade(row *MatchedTransaction) (models.TradeID, bool) {
	open, ok := m.openSymbol[row.Symbol]
	if !ok {
		return models.UnmatchedTrade, false
	}
	for _, n := range open.order {
		q := open.qty[n]
		if row.Quantity*q < 0 && math.Abs(row.Quantity) <= math.Abs(q) {
			return m.ifPlausibleSize(row, models.OpenTrade(n))
		}
	}
	return models.UnmatchedTrade, false
}

// ifPlausibleSize rejects fx-spot attributions that are too small relative
// to the candidate trade's gross size; tiny conversions otherwise glue
// themselves onto unrelated trades.
func (m *TradeMatcher) ifPlausibleSize(row *MatchedTransaction, id models.TradeID) (models.TradeID, bool) {
	if row.AssetType != models.FxSpot {
		return id, true
	}
	if n, ok := id.Number(); ok && math.Abs(row.Quantity) > m.cfg.PlausibilityFloor*m.tradeSize[n] {
		return id, true
	}
	return models.UnmatchedTrade, false
}

func (m *TradeMatcher) recordOpen(row *MatchedTransaction, id models.TradeID) {
	m.openGeo[row.Geography] = id
	n, ok := id.Number()
	if !ok {
		return
	}
	open, exists := m.openSymbol[row.Symbol]
	if !exists {
		open = &openTrades{qty: make(map[int]float64)}
		m.openSymbol[row.Symbol] = open
	}
	open.add(n, row.Quantity)
}

func (m *TradeMatcher) recordClose(row *MatchedTransaction, id models.TradeID) {
	m.closed[rollKey{date: row.Date, geo: row.Geography, asset: row.AssetType}] = id
}

func (m *TradeMatcher) applyTradeSizes(rows []MatchedTransaction) {
	for i := range rows {
		if n, ok := rows[i].TradeID.Number(); ok {
			rows[i].TradeSizeGBP = m.tradeSize[n]
		}
	}
}
