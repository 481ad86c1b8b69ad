package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"dexhub/adapters/oidc"
	"dexhub/adapters/session"
	"dexhub/models"
)

const accessTokenCookie = "access_token"

// currentUser 從cookie中解析出目前登入的使用者
func (impl *ServerImpl) currentUser(c *gin.Context) (*JWT, error) {
	const op = "currentUser"
	tokenString, err := c.Cookie(accessTokenCookie)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to read access token cookie, err=%w", op, err)
	}
	token, err := ParseAndValidateJWT(tokenString, impl.config.Auth.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse and validate JWT, err=%w", op, err)
	}
	return token, nil
}

// Obtain authentication url
// (GET /auth/sso/:provider/login)
func (impl *ServerImpl) GetAuthSsoProviderLogin(c *gin.Context) {
	const op = "GetAuthLogin"
	// 取得provider
	provider, ok := impl.oidcProviders[c.Param("provider")]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	state, err := generateID("st")
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Unable to generate state, err=%w", op, err))
		return
	}
	nonce, err := generateID("n")
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Unable to generate nonce, err=%w", op, err))
		return
	}
	// 將驗證參數存進session，callback時比對
	sess, err := session.GetSession(c)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to get session, err=%w", op, err))
		return
	}
	redirectURL := c.Query("redirect_url")
	sess.Set(SESSION_KEY_REQUEST_STATE, state)
	sess.Set(SESSION_KEY_REQUEST_NONCE, nonce)
	sess.Set(SESSION_KEY_REDIRECT_URL, redirectURL)
	sess.Set(SESSION_KEY_URL_BEFORE_LOGIN, c.Query("from"))
	if err := sess.Save(); err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to save session, err=%w", op, err))
		return
	}
	// 轉導到 sso server 的登入頁面
	c.Redirect(http.StatusFound, provider.AuthURL(state, nonce, redirectURL, []string{"email", "openid", "profile"}))
}

// Exchange authorization code
// (GET /auth/sso/:provider/callback)
func (impl *ServerImpl) GetAuthSsoProviderCallback(c *gin.Context) {
	const op = "GetAuthCallback"
	// 取得provider
	providerName := c.Param("provider")
	provider, ok := impl.oidcProviders[providerName]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	// 驗證 callback 的參數和login時儲存在session的參數是否相同
	sess, err := session.GetSession(c)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to get session, err=%w", op, err))
		return
	}
	verifier := provider.NewExchangeVerifier(sess.Get(SESSION_KEY_REQUEST_STATE), sess.Get(SESSION_KEY_REQUEST_NONCE))
	// 向驗證伺服器交換token
	token, err := provider.Exchange(c, verifier, c.Query("code"), c.Query("state"), sess.Get(SESSION_KEY_REDIRECT_URL))
	if errors.Is(err, oidc.ErrStateMismatch) || errors.Is(err, oidc.ErrNonceMismatch) {
		c.Status(http.StatusBadRequest)
		return
	}
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to exchange token, err=%w", op, err))
		return
	}
	// 關聯使用者資料(用於關聯使用者操作)
	// 如果 identity 不存在，會建立新的使用者
	ssoProvider := models.SsoProvider{Name: providerName}
	if result := impl.db.Where(&ssoProvider).First(&ssoProvider); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to find sso provider %s, err=%w", op, providerName, result.Error))
		return
	}
	userIdentity := models.UserIdentity{
		SsoProviderID: ssoProvider.ID,
		Identity:      token.IDToken.Sub,
	}
	if result := impl.db.Preload("User").Where(&userIdentity).First(&userIdentity); result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		impl.internalError(c, fmt.Errorf("[%s] Fail to get user identity, err=%w", op, result.Error))
		return
	} else if result.Error != nil {
		userIdentity.User = &models.User{
			Username:    token.IDToken.Name,
			DisplayName: token.IDToken.Name,
		}
		if result := impl.db.Create(&userIdentity); result.Error != nil {
			impl.internalError(c, fmt.Errorf("[%s] Fail to create user identity, err=%w", op, result.Error))
			return
		}
	}
	// 建立token並寫入cookie
	tokenString, err := SignJWT(userIdentity.User.Username, userIdentity.User.ID, impl.config.Auth)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to sign JWT, err=%w", op, err))
		return
	}
	maxAge := int(impl.config.Auth.ExpireDuration / time.Second)
	c.SetCookie(accessTokenCookie, tokenString, maxAge, "/", "", true, true)
	c.SetCookie("username", base64.StdEncoding.EncodeToString([]byte(userIdentity.User.Username)), maxAge, "/", "", true, false)
	// 清掉一次性的驗證參數後轉導回登入前的頁面
	urlBeforeLogin := sess.Get(SESSION_KEY_URL_BEFORE_LOGIN)
	sess.Clear()
	if err := sess.Save(); err != nil {
		slog.Warn("Fail to clear session after login", slog.String("op", op), slog.Any("error", err))
	}
	if urlBeforeLogin == "" {
		urlBeforeLogin = "/"
	}
	c.Redirect(http.StatusFound, urlBeforeLogin)
}

// Revoke authentication token
// (GET /auth/logout)
func (impl *ServerImpl) GetAuthLogout(c *gin.Context) {
	// only clear the cookie without revoking the token
	c.SetCookie(accessTokenCookie, "", -1, "/", "", true, true)
	c.SetCookie("username", "", -1, "/", "", true, false)
	c.Status(http.StatusOK)
}

// internalError 統一記錄並回應伺服器內部錯誤
func (impl *ServerImpl) internalError(c *gin.Context, err error) {
	slog.Error("Internal server error", slog.Any("error", err))
	c.Status(http.StatusInternalServerError)
}
