package models

// PushCommand — входящие команды конвейера. Все несут (symbol, posSide).
type PushCommand string

const (
	CmdPushBuyOrders          PushCommand = "PushBuyOrders"
	CmdPushStops              PushCommand = "PushStops"
	CmdPushRelevantBuyOrders  PushCommand = "PushRelevantBuyOrders"
	CmdPushRelevantStopOrders PushCommand = "PushRelevantStopOrders"
	CmdTryReleaseActiveOrders PushCommand = "TryReleaseActiveOrders"

	// исходящая, обрабатывается hedge-подсистемой
	CmdIncreaseHedgeSupportByMainProfit PushCommand = "IncreaseHedgeSupportPositionByGetProfitFromMain"
)

type PushMessage struct {
	Command PushCommand
	Symbol  string
	PosSide string // long/short
}

// PartitionKey — ключ партиции диспетчера: на одну пару (symbol, side)
// ровно один консьюмер, иначе два прохода могут запушить один ордер дважды.
func (m PushMessage) PartitionKey() string { return m.Symbol + ":" + m.PosSide }
