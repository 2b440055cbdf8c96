package skills

// Token balances keyed the way the skill API reports them.
type Balances struct {
	ETH  string `json:"ETH"`
	USDC string `json:"USDC"`
}

type BalanceResult struct {
	Address   string   `json:"address"`
	Network   string   `json:"network"`
	Balances  Balances `json:"balances"`
	Timestamp string   `json:"timestamp"`
}

type TxResult struct {
	Hash        string `json:"hash"`
	Network     string `json:"network"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	GasUsed     string `json:"gasUsed"`
	Status      string `json:"status"`
	BlockNumber *int64 `json:"blockNumber"`
	Timestamp   string `json:"timestamp"`
}

type PriceResult struct {
	Token     string  `json:"token"`
	Network   string  `json:"network"`
	PriceUSD  float64 `json:"priceUSD"`
	Change24h *string `json:"change24h"`
	Timestamp string  `json:"timestamp"`
}

// WalletResult carries a server-generated key pair. The private key is
// never logged.
type WalletResult struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
	Network    string `json:"network"`
	ChainID    int64  `json:"chainId"`
	Note       string `json:"note"`
	Timestamp  string `json:"timestamp"`
}

// ChatMessage is one turn of a chat history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResult struct {
	Response string `json:"response"`
}

// UnsignedTx is a transaction the caller signs and broadcasts itself.
type UnsignedTx struct {
	To      string `json:"to"`
	Value   string `json:"value"`
	Data    string `json:"data"`
	ChainID int64  `json:"chainId"`
}

type SendResult struct {
	Tx        UnsignedTx `json:"tx"`
	Token     string     `json:"token"`
	Amount    string     `json:"amount"`
	Network   string     `json:"network"`
	Note      string     `json:"note"`
	Timestamp string     `json:"timestamp"`
}

type TradeResult struct {
	Swap      UnsignedTx  `json:"swap"`
	Approve   *UnsignedTx `json:"approve,omitempty"`
	SrcToken  string      `json:"srcToken"`
	DstToken  string      `json:"dstToken"`
	Amount    string      `json:"amount"`
	Network   string      `json:"network"`
	Router    string      `json:"router"`
	Note      string      `json:"note"`
	Timestamp string      `json:"timestamp"`
}

type FundingInstructions struct {
	Steps              []string `json:"steps"`
	MinimumRecommended Balances `json:"minimumRecommended"`
	BridgeURL          string   `json:"bridgeUrl"`
}

type FundResult struct {
	Address        string              `json:"address"`
	Network        string              `json:"network"`
	ChainID        int64               `json:"chainId"`
	Balances       Balances            `json:"balances"`
	DepositAddress string              `json:"depositAddress"`
	Funding        FundingInstructions `json:"funding"`
	Timestamp      string              `json:"timestamp"`
}

// BroadcastTx is the transaction handed to /broadcast for signing and
// submission by the skill API.
type BroadcastTx struct {
	To       string `json:"to"`
	Data     string `json:"data,omitempty"`
	Value    string `json:"value,omitempty"`
	GasLimit string `json:"gasLimit,omitempty"`
}

type BroadcastResult struct {
	TxHash    string `json:"txHash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Network   string `json:"network"`
	ChainID   int64  `json:"chainId"`
	Explorer  string `json:"explorer"`
	Note      string `json:"note"`
	Timestamp string `json:"timestamp"`
}

type UnlimitedResult struct {
	Message   string `json:"message"`
	APIKey    string `json:"apiKey"`
	Address   string `json:"address"`
	Plan      string `json:"plan"`
	Price     string `json:"price,omitempty"`
	Note      string `json:"note,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type UnlimitedVerifyResult struct {
	Valid   bool   `json:"valid"`
	Address string `json:"address,omitempty"`
	Since   string `json:"since,omitempty"`
	Plan    string `json:"plan,omitempty"`
	Error   string `json:"error,omitempty"`
}
