package simulate

// DefaultIdentities 是模擬身份的顯示名稱池
// 這些名稱只存在於記憶體中，不對應任何真實帳號
var DefaultIdentities = []string{
	"ShinyHunterMei",
	"GhostTypeGary",
	"CharmanderChad",
	"EeveeCollector99",
	"MasterBallMiki",
	"PikaPikaPaul",
	"DragoniteDora",
	"BaseSetBryan",
	"HoloFinderHana",
	"SnorlaxSleeper",
	"GymLeaderLena",
	"PSA10Hunter",
}

// auctionPhrases 是拍賣情境的開場與閒聊語句池
var auctionPhrases = []string{
	"這張卡況看起來超乾淨，邊角完全沒白點",
	"這個價格還算合理，再觀望一下",
	"剛剛才錯過一張一樣的，這次不想再錯過了",
	"背面置中怎麼樣？有人看得出來嗎",
	"這系列最近漲好兇",
	"結標前十分鐘才是重頭戲",
	"已經設好提醒了，最後再來搶",
	"鑑定分數如果有9以上我直接出",
	"運費含在內嗎？看起來很划算",
	"收藏冊剛好缺這張",
}

// sitePhrases 是站內情境的閒聊語句池
var sitePhrases = []string{
	"昨天圖鑑打卡連續30天達成，爽",
	"這個賣家之前跟他買過，出貨很快",
	"今天首頁推薦的卡單也太強",
	"有人要去下個月的交流會嗎",
	"剛把我的願望清單整理完",
	"最近新手變多了，大家友善點",
}

// mentionPhrases 是模擬身份之間互相喊話的語句池，%s 會帶入被提及的名稱
var mentionPhrases = []string{
	"@%s 你上次不是說要收這張？",
	"@%s 這張比你上週搶輸的那張漂亮吧",
	"@%s 快來看這個卡況",
	"@%s 你的預算夠嗎哈哈",
}

// replyPhrases 是針對真實使用者留言的一次性回覆語句池，%s 會帶入對方的顯示名稱
// 語氣設計為提問式，目的是引起對方回應
var replyPhrases = []string{
	"@%s 你也在收這個系列嗎？收多久了？",
	"@%s 你覺得這張最後會飆到多少？",
	"@%s 同好欸！你圖鑑裡最稀有的是哪張？",
	"@%s 你會出到底嗎？我在猶豫要不要跟",
}
